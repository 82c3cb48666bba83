package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/civitas/user-service/internal/domain"
	"github.com/civitas/user-service/internal/validation"
	apperrors "github.com/civitas/user-service/pkg/errors"
	"github.com/civitas/user-service/pkg/pagination"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.User), args.Int(1), args.Error(2)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Event Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishUserCreated(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockPublisher) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockPublisher) PublishUserDeleted(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// --- Test Helpers ---

const testUserID = "6f1c1c2e-4a0b-4bb4-9a57-0d4f0f7f2f10"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(userRepo *mockUserRepository, publisher *mockPublisher) (*UserService, *Metrics) {
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewUserService(userRepo, publisher, newTestLogger(), metrics), metrics
}

func strPtr(s string) *string {
	return &s
}

func validAddresses() []domain.Address {
	return []domain.Address{
		{
			IsPrimary: true,
			Detail: &domain.AddressDetail{
				Line1: "1 Main St", City: "Springfield", State: "IL", Country: "US", PostalCode: "62701",
			},
		},
		{
			Location: &domain.GeoLocation{Type: domain.GeoPointType, Coordinates: []float64{-89.65, 39.78}},
		},
	}
}

func existingUser() *domain.User {
	return &domain.User{
		ID:        testUserID,
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Addresses: []domain.Address{},
	}
}

func requireModelError(t *testing.T, err error, status int) *apperrors.ModelError {
	t.Helper()
	require.Error(t, err)
	var modelErr *apperrors.ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, status, modelErr.Status)
	return modelErr
}

// --- CreateUser Tests ---

func TestCreateUser_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	publisher.On("PublishUserCreated", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := svc.CreateUser(ctx, CreateUserInput{
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Addresses: validAddresses(),
	})

	require.NoError(t, err)
	assert.True(t, isUserID(user.ID))
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Len(t, user.Addresses, 2)
	assert.NotZero(t, user.CreatedAt)
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)

	userRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCreateUser_WithoutAddresses(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	publisher.On("PublishUserCreated", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := svc.CreateUser(ctx, CreateUserInput{Email: "ada@example.com"})

	require.NoError(t, err)
	assert.NotNil(t, user.Addresses)
	assert.Empty(t, user.Addresses)
}

func TestCreateUser_InvalidAddresses(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, metrics := newTestService(userRepo, publisher)

	addresses := validAddresses()
	addresses[1].IsPrimary = true

	user, err := svc.CreateUser(context.Background(), CreateUserInput{Email: "ada@example.com", Addresses: addresses})

	assert.Nil(t, user)
	modelErr := requireModelError(t, err, 400)
	require.Len(t, modelErr.Issues(), 1)
	assert.Equal(t, validation.CodePrimaryAddressCount, modelErr.Issues()[0].Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.validationIssues.WithLabelValues("200005")))

	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(apperrors.AlreadyExists("user", "email", "ada@example.com"))

	user, err := svc.CreateUser(ctx, CreateUserInput{Email: "ada@example.com"})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	publisher.AssertNotCalled(t, "PublishUserCreated", mock.Anything, mock.Anything)
}

func TestCreateUser_PublishFailureIsNotFatal(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	publisher.On("PublishUserCreated", ctx, mock.AnythingOfType("*domain.User")).Return(errors.New("broker down"))

	user, err := svc.CreateUser(ctx, CreateUserInput{Email: "ada@example.com"})

	require.NoError(t, err)
	assert.NotNil(t, user)
}

// --- GetUser Tests ---

func TestGetUser_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(existingUser(), nil)

	user, err := svc.GetUser(ctx, testUserID)

	require.NoError(t, err)
	assert.Equal(t, testUserID, user.ID)
	userRepo.AssertExpectations(t)
}

func TestGetUser_NotFound(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(nil, apperrors.ErrNotFound)

	_, err := svc.GetUser(ctx, testUserID)

	modelErr := requireModelError(t, err, 404)
	assert.Equal(t, apperrors.NameResourceNotFound, modelErr.Name)
	assert.Equal(t, []apperrors.Issue{{
		Code:    CodeUserNotFound,
		Message: "No user with id [" + testUserID + "] was found.",
		Path:    []string{"id"},
	}}, modelErr.Issues())
}

func TestGetUser_MalformedIDSkipsRepository(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))

	_, err := svc.GetUser(context.Background(), "42")

	modelErr := requireModelError(t, err, 404)
	assert.Equal(t, "No user with id [42] was found.", modelErr.Issues()[0].Message)
	userRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetUser_RepositoryError(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(nil, errors.New("connection refused"))

	_, err := svc.GetUser(ctx, testUserID)

	require.Error(t, err)
	assert.Equal(t, 500, apperrors.AsModelError(err).Status)
}

// --- ListUsers Tests ---

func TestListUsers(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("List", ctx, 20, 10).Return([]domain.User{*existingUser()}, 21, nil)

	users, total, err := svc.ListUsers(ctx, pagination.Params{Page: 3, PerPage: 10})

	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 21, total)
	userRepo.AssertExpectations(t)
}

func TestListUsers_Error(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("List", ctx, 0, 20).Return(nil, 0, errors.New("timeout"))

	_, _, err := svc.ListUsers(ctx, pagination.DefaultParams())
	assert.ErrorContains(t, err, "list users")
}

// --- UpdateUser Tests ---

func TestUpdateUser_ReplacesAddresses(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(existingUser(), nil)
	userRepo.On("Update", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == testUserID && len(u.Addresses) == 2 && u.FirstName == "Augusta"
	})).Return(nil)
	publisher.On("PublishUserUpdated", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	addresses := validAddresses()
	user, err := svc.UpdateUser(ctx, testUserID, UpdateUserInput{
		FirstName: strPtr("Augusta"),
		Addresses: &addresses,
	})

	require.NoError(t, err)
	assert.Equal(t, "Augusta", user.FirstName)
	assert.Equal(t, "Lovelace", user.LastName)
	assert.Equal(t, addresses, user.Addresses)
	assert.NotZero(t, user.UpdatedAt)

	userRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestUpdateUser_ProfileOnlyKeepsAddresses(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	current := existingUser()
	current.Addresses = validAddresses()[:1]

	userRepo.On("GetByID", ctx, testUserID).Return(current, nil)
	userRepo.On("Update", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	publisher.On("PublishUserUpdated", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := svc.UpdateUser(ctx, testUserID, UpdateUserInput{Email: strPtr("augusta@example.com")})

	require.NoError(t, err)
	assert.Equal(t, "augusta@example.com", user.Email)
	assert.Len(t, user.Addresses, 1)
}

func TestUpdateUser_CollectsEveryIssue(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, metrics := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(existingUser(), nil)

	addresses := []domain.Address{
		{IsPrimary: false},
		{Detail: &domain.AddressDetail{Line1: "x", City: "y", Country: "CA", PostalCode: "z"}},
		{Location: &domain.GeoLocation{Type: domain.GeoPointType, Coordinates: []float64{181, -95}}},
	}
	user, err := svc.UpdateUser(ctx, testUserID, UpdateUserInput{Addresses: &addresses})

	assert.Nil(t, user)
	modelErr := requireModelError(t, err, 400)
	codes := make([]int, 0, len(modelErr.Issues()))
	for _, issue := range modelErr.Issues() {
		codes = append(codes, issue.Code)
	}
	assert.Equal(t, []int{200005, 200001, 200003, 200002, 200002}, codes)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.validationIssues.WithLabelValues("200002")))

	userRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "PublishUserUpdated", mock.Anything, mock.Anything)
}

func TestUpdateUser_NotFoundWinsOverInvalidAddresses(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(nil, apperrors.ErrNotFound)

	addresses := []domain.Address{}
	_, err := svc.UpdateUser(ctx, testUserID, UpdateUserInput{Addresses: &addresses})

	modelErr := requireModelError(t, err, 404)
	assert.Equal(t, CodeUserNotFound, modelErr.Issues()[0].Code)
}

func TestUpdateUser_DeletedConcurrently(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	userRepo.On("GetByID", ctx, testUserID).Return(existingUser(), nil)
	userRepo.On("Update", ctx, mock.AnythingOfType("*domain.User")).Return(apperrors.ErrNotFound)

	_, err := svc.UpdateUser(ctx, testUserID, UpdateUserInput{LastName: strPtr("King")})

	requireModelError(t, err, 404)
}

// --- DeleteUser Tests ---

func TestDeleteUser_Success(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("Delete", ctx, testUserID).Return(nil)
	publisher.On("PublishUserDeleted", ctx, testUserID).Return(nil)

	require.NoError(t, svc.DeleteUser(ctx, testUserID))
	userRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestDeleteUser_NotFound(t *testing.T) {
	userRepo := new(mockUserRepository)
	publisher := new(mockPublisher)
	svc, _ := newTestService(userRepo, publisher)
	ctx := context.Background()

	userRepo.On("Delete", ctx, testUserID).Return(apperrors.ErrNotFound)

	err := svc.DeleteUser(ctx, testUserID)

	requireModelError(t, err, 404)
	publisher.AssertNotCalled(t, "PublishUserDeleted", mock.Anything, mock.Anything)
}

func TestDeleteUser_MalformedID(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))

	requireModelError(t, svc.DeleteUser(context.Background(), "not-a-uuid"), 404)
	userRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteUser_RepositoryErrorIsWrapped(t *testing.T) {
	userRepo := new(mockUserRepository)
	svc, _ := newTestService(userRepo, new(mockPublisher))
	ctx := context.Background()

	cause := errors.New("connection reset")
	userRepo.On("Delete", ctx, testUserID).Return(cause)

	err := svc.DeleteUser(ctx, testUserID)

	assert.EqualError(t, err, "delete user: connection reset")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

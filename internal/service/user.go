package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/civitas/user-service/internal/domain"
	"github.com/civitas/user-service/internal/repository"
	"github.com/civitas/user-service/internal/validation"
	apperrors "github.com/civitas/user-service/pkg/errors"
	"github.com/civitas/user-service/pkg/pagination"
)

// CodeUserNotFound is the issue code reported when the target user does not exist.
const CodeUserNotFound = 100002

// EventPublisher publishes user domain events. Implemented by event.Producer.
type EventPublisher interface {
	PublishUserCreated(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
	PublishUserDeleted(ctx context.Context, userID string) error
}

// Metrics counts address rule violations by issue code.
type Metrics struct {
	validationIssues *prometheus.CounterVec
}

// NewMetrics registers the service counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		validationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_address_validation_issues_total",
			Help: "Address validation issues reported to clients, by issue code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.validationIssues)
	return m
}

func (m *Metrics) observe(issues []apperrors.Issue) {
	if m == nil {
		return
	}
	for _, issue := range issues {
		m.validationIssues.WithLabelValues(strconv.Itoa(issue.Code)).Inc()
	}
}

// UserService implements the business logic for user records.
type UserService struct {
	userRepo  repository.UserRepository
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *Metrics
}

// NewUserService creates a new user service. metrics may be nil.
func NewUserService(
	userRepo repository.UserRepository,
	publisher EventPublisher,
	logger *slog.Logger,
	metrics *Metrics,
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// CreateUserInput holds the parameters for creating a user. A nil
// Addresses means none were supplied and skips the address rules.
type CreateUserInput struct {
	Email     string
	FirstName string
	LastName  string
	Addresses []domain.Address
}

// UpdateUserInput holds the parameters for updating a user. Nil fields are
// left unchanged; a non-nil Addresses replaces the whole list.
type UpdateUserInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Addresses *[]domain.Address
}

// CreateUser validates the address list and persists a new user.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if input.Addresses != nil {
		if err := s.validateAddresses(ctx, input.Addresses); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.New().String(),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Addresses: nonNil(input.Addresses),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperrors.Wrap(err, "create user")
	}

	if err := s.publisher.PublishUserCreated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.created event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("user_id", user.ID),
		slog.Int("addresses", len(user.Addresses)),
	)

	return user, nil
}

// GetUser returns the user with the given id or a ResourceNotFound error
// carrying issue 100002.
func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !isUserID(id) {
		return nil, userNotFound(id)
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, userNotFound(id)
		}
		return nil, apperrors.Wrap(err, "get user")
	}
	return user, nil
}

// ListUsers returns one page of users and the total count.
func (s *UserService) ListUsers(ctx context.Context, params pagination.Params) ([]domain.User, int, error) {
	users, total, err := s.userRepo.List(ctx, params.Offset(), params.Limit())
	if err != nil {
		return nil, 0, apperrors.Wrap(err, "list users")
	}
	return users, total, nil
}

// UpdateUser applies input to an existing user. The lookup runs first, so
// an unknown id is reported even when the address list is also invalid.
// When addresses are supplied, every rule violation is reported at once and
// nothing is persisted.
func (s *UserService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.Addresses != nil {
		if err := s.validateAddresses(ctx, *input.Addresses); err != nil {
			return nil, err
		}
		user.Addresses = nonNil(*input.Addresses)
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, userNotFound(id)
		}
		return nil, apperrors.Wrap(err, "update user")
	}

	if err := s.publisher.PublishUserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user updated",
		slog.String("user_id", user.ID),
		slog.Bool("addresses_replaced", input.Addresses != nil),
	)

	return user, nil
}

// DeleteUser removes the user and its addresses.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if !isUserID(id) {
		return userNotFound(id)
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return userNotFound(id)
		}
		return apperrors.Wrap(err, "delete user")
	}

	if err := s.publisher.PublishUserDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", id))
	return nil
}

func (s *UserService) validateAddresses(ctx context.Context, addresses []domain.Address) error {
	result := validation.ValidateAddresses(addresses)
	if result.OK() {
		return nil
	}
	s.metrics.observe(result.Issues())
	s.logger.InfoContext(ctx, "address validation rejected update",
		slog.Int("issues", len(result.Issues())),
	)
	return result.Err()
}

// userNotFound builds the 404 envelope for an unknown id.
func userNotFound(id string) error {
	return apperrors.ResourceNotFound(apperrors.Issue{
		Code:    CodeUserNotFound,
		Message: fmt.Sprintf("No user with id [%s] was found.", id),
		Path:    []string{"id"},
	})
}

// isUserID reports whether id can name a stored user. Ids are UUIDs, so
// anything else cannot exist and skips the database round trip.
func isUserID(id string) bool {
	return uuid.Validate(id) == nil
}

func nonNil(a []domain.Address) []domain.Address {
	if a == nil {
		return []domain.Address{}
	}
	return a
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civitas/user-service/internal/domain"
	"github.com/civitas/user-service/internal/service"
	"github.com/civitas/user-service/pkg/httputil"
	"github.com/civitas/user-service/pkg/pagination"
	"github.com/civitas/user-service/pkg/validator"
)

// UserHandler handles HTTP requests for the /user endpoints.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// AddressDetailRequest is the postal part of an address.
type AddressDetailRequest struct {
	Line1      string `json:"line1" validate:"required,max=500"`
	Line2      string `json:"line2" validate:"omitempty,max=500"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"omitempty,max=100"`
	Province   string `json:"province" validate:"omitempty,max=100"`
	Country    string `json:"country" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Type       string `json:"type" validate:"omitempty,max=50"`
}

// LocationRequest is a GeoJSON point: [longitude, latitude].
type LocationRequest struct {
	Type        string    `json:"type" validate:"required,eq=Point"`
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
}

// AddressRequest is one entry of the addresses array.
type AddressRequest struct {
	IsPrimary bool                  `json:"isPrimary"`
	Detail    *AddressDetailRequest `json:"detail" validate:"omitempty"`
	Location  *LocationRequest      `json:"location" validate:"omitempty"`
}

// CreateUserRequest is the JSON request body for POST /user.
type CreateUserRequest struct {
	Email     string           `json:"email" validate:"required,email,max=255"`
	FirstName string           `json:"firstName" validate:"omitempty,max=100"`
	LastName  string           `json:"lastName" validate:"omitempty,max=100"`
	Addresses []AddressRequest `json:"addresses" validate:"dive"`
}

// UpdateUserRequest is the JSON request body for PUT /user/{id}. Omitted
// fields are left unchanged; a present addresses array replaces the list.
type UpdateUserRequest struct {
	Email     *string          `json:"email" validate:"omitempty,email,max=255"`
	FirstName *string          `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string          `json:"lastName" validate:"omitempty,max=100"`
	Addresses []AddressRequest `json:"addresses" validate:"dive"`
}

func toDomainAddresses(reqs []AddressRequest) []domain.Address {
	if reqs == nil {
		return nil
	}
	addresses := make([]domain.Address, len(reqs))
	for i, req := range reqs {
		addresses[i] = domain.Address{IsPrimary: req.IsPrimary}
		if d := req.Detail; d != nil {
			addresses[i].Detail = &domain.AddressDetail{
				Line1:      d.Line1,
				Line2:      d.Line2,
				City:       d.City,
				State:      d.State,
				Province:   d.Province,
				Country:    d.Country,
				PostalCode: d.PostalCode,
				Type:       d.Type,
			}
		}
		if l := req.Location; l != nil {
			addresses[i].Location = &domain.GeoLocation{Type: l.Type, Coordinates: l.Coordinates}
		}
	}
	return addresses
}

// --- Handlers ---

// List handles GET /user
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	users, total, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pagination.NewResult(users, total, params)})
}

// Create handles POST /user
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), service.CreateUserInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Addresses: toDomainAddresses(req.Addresses),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: user})
}

// Get handles GET /user/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// Update handles PUT /user/{id}. Shape errors come first, then an unknown
// id, then the address rules.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateUserRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.UpdateUserInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.Addresses != nil {
		addresses := toDomainAddresses(req.Addresses)
		input.Addresses = &addresses
	}

	user, err := h.service.UpdateUser(r.Context(), id, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// Delete handles DELETE /user/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package repository

import (
	"context"

	"github.com/civitas/user-service/internal/domain"
)

// UserRepository persists users together with their ordered address list.
// Lookups of unknown ids return apperrors.ErrNotFound.
type UserRepository interface {
	// Create inserts the user and its addresses.
	Create(ctx context.Context, user *domain.User) error

	// GetByID loads a user with its addresses in their stored order.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// List returns one page of users ordered by creation time, plus the total count.
	List(ctx context.Context, offset, limit int) ([]domain.User, int, error)

	// Update saves the profile fields and replaces the address list atomically.
	Update(ctx context.Context, user *domain.User) error

	// Delete removes the user and its addresses.
	Delete(ctx context.Context, id string) error
}

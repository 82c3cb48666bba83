// Package postgres implements the user repository on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/civitas/user-service/internal/domain"
	"github.com/civitas/user-service/pkg/database"
	apperrors "github.com/civitas/user-service/pkg/errors"
)

const uniqueViolation = "23505"

const (
	insertUserQuery = `
		INSERT INTO users (id, email, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	selectUserQuery = `
		SELECT id, email, first_name, last_name, created_at, updated_at
		FROM users
		WHERE id = $1`

	countUsersQuery = `SELECT COUNT(*) FROM users`

	listUsersQuery = `
		SELECT id, email, first_name, last_name, created_at, updated_at
		FROM users
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2`

	updateUserQuery = `
		UPDATE users
		SET email = $1, first_name = $2, last_name = $3, updated_at = $4
		WHERE id = $5`

	deleteUserQuery = `DELETE FROM users WHERE id = $1`
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DB
}

func NewUserRepository(db database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateUser", insertUserQuery)
	defer func() { end(err) }()

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertUserQuery,
			u.ID, u.Email, u.FirstName, u.LastName, u.CreatedAt, u.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return apperrors.AlreadyExists("user", "email", u.Email)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return insertAddresses(ctx, tx, u.ID, u.Addresses)
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "GetUser", selectUserQuery)
	defer func() { end(ignoreNotFound(err)) }()

	u = &domain.User{}
	err = r.db.QueryRow(ctx, selectUserQuery, id).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	addresses, err := r.loadAddresses(ctx, []string{u.ID})
	if err != nil {
		return nil, err
	}
	u.Addresses = nonNil(addresses[u.ID])
	return u, nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) (users []domain.User, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListUsers", listUsersQuery)
	defer func() { end(err) }()

	if err := r.db.QueryRow(ctx, countUsersQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx, listUsersQuery, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users = []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate user rows: %w", err)
	}
	rows.Close()

	if len(users) == 0 {
		return users, total, nil
	}

	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	addresses, err := r.loadAddresses(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range users {
		users[i].Addresses = nonNil(addresses[users[i].ID])
	}
	return users, total, nil
}

// Update writes the profile and swaps the whole address list in one
// transaction, so readers never see a partial list.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	ctx, end := database.TraceQuery(ctx, "UpdateUser", updateUserQuery)
	defer func() { end(ignoreNotFound(err)) }()

	return r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, updateUserQuery, u.Email, u.FirstName, u.LastName, u.UpdatedAt, u.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.AlreadyExists("user", "email", u.Email)
			}
			return fmt.Errorf("update user: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		if _, err := tx.Exec(ctx, deleteAddressesQuery, u.ID); err != nil {
			return fmt.Errorf("clear addresses: %w", err)
		}
		return insertAddresses(ctx, tx, u.ID, u.Addresses)
	})
}

// Delete relies on ON DELETE CASCADE to drop the address rows.
func (r *UserRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteUser", deleteUserQuery)
	defer func() { end(ignoreNotFound(err)) }()

	ct, err := r.db.Exec(ctx, deleteUserQuery, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ignoreNotFound keeps expected misses from marking spans as failed.
func ignoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

func nonNil(a []domain.Address) []domain.Address {
	if a == nil {
		return []domain.Address{}
	}
	return a
}

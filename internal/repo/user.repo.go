package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"checkout-core/internal/domain"
)

// UserDirectory looks up the known user record, used to seed and backfill
// the customer email. Returns (nil, nil) on a miss.
type UserDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserDirectory {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var (
		u     domain.User
		phone sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, first_name, last_name, email, phone FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	u.Phone = phone.String
	return &u, nil
}

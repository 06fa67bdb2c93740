package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"checkout-core/internal/domain"
)

// AddressDirectory resolves stored addresses for the draft creator's
// shipping snapshot. Both lookups return (nil, nil) on a miss.
type AddressDirectory interface {
	// FindForUser returns the address only when it belongs to the caller.
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Address, error)

	// FindDefault returns the caller's default saved address.
	FindDefault(ctx context.Context, userID uuid.UUID) (*domain.Address, error)
}

type addressRepo struct {
	db *sql.DB
}

func NewAddressRepo(db *sql.DB) AddressDirectory {
	return &addressRepo{db: db}
}

const addressColumns = `id, user_id, full_name, phone, address_line1, address_line2,
	city, state, postal_code, country, is_default`

func (r *addressRepo) FindForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Address, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+addressColumns+" FROM addresses WHERE id = $1 AND user_id = $2",
		id, userID,
	)
	return scanAddress(row)
}

func (r *addressRepo) FindDefault(ctx context.Context, userID uuid.UUID) (*domain.Address, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+addressColumns+" FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, updated_at DESC LIMIT 1",
		userID,
	)
	return scanAddress(row)
}

func scanAddress(row *sql.Row) (*domain.Address, error) {
	var (
		a                                                  domain.Address
		fullName, phone, line1, line2, city, state, postal sql.NullString
	)

	err := row.Scan(&a.ID, &a.UserID, &fullName, &phone, &line1, &line2,
		&city, &state, &postal, &a.Country, &a.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	a.FullName = fullName.String
	a.Phone = phone.String
	a.AddressLine1 = line1.String
	a.AddressLine2 = line2.String
	a.City = city.String
	a.State = state.String
	a.PostalCode = postal.String
	return &a, nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog's authoritative price record. Cart totals are only
// ever computed from these, never from client-supplied prices.
type Product struct {
	ID          uuid.UUID
	Name        string
	Price       decimal.Decimal
	Description string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type User struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type Address struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	FullName     string
	Phone        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	IsDefault    bool
}

// Snapshot freezes the address into the denormalized form stored on an order.
func (a *Address) Snapshot() *ShippingSnapshot {
	return &ShippingSnapshot{
		FullName:     a.FullName,
		Phone:        a.Phone,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPlaced    OrderStatus = "PLACED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderPending:   {},
	OrderPlaced:    {},
	OrderCancelled: {},
}

func ToOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	_, ok := validOrderStatuses[status]
	return status, ok
}

// Order is the single entity of record. It is created PENDING by the checkout
// service and mutated only by the reconciliation resolver, except for the
// sweeper cancelling abandoned drafts.
//
// SessionRef and PaymentRef are sparse-unique: many orders carry neither, but
// no two orders share a non-null value. They are set exactly once.
type Order struct {
	ID         uuid.UUID
	SessionRef *string
	PaymentRef *string

	UserRef    *uuid.UUID
	AddressRef *uuid.UUID

	Amount   decimal.Decimal
	Currency currency.Unit

	Items    []OrderItem
	Shipping *ShippingSnapshot

	CustomerEmail *string

	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus

	// NeedsReview marks fallback-created orders that have no draft to attach
	// to and must be reconciled manually.
	NeedsReview bool

	SettledAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is one normalized cart line, snapshotted at draft time from the
// catalog's authoritative price. Never re-derived from gateway data.
type OrderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ItemsTotal sums the line totals of the snapshot.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Settled reports whether the order has already been reconciled against a
// gateway payment. Either external reference being present means a prior
// delivery won; further deliveries are duplicates.
func (o *Order) Settled() bool {
	return o.SessionRef != nil || o.PaymentRef != nil
}

// ShippingSnapshot is the shipping address as it was at draft time.
type ShippingSnapshot struct {
	FullName     string `json:"fullName,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"addressLine1,omitempty"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Country      string `json:"country,omitempty"`
}

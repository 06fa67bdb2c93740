// Package gateway is the FastPay adapter: a hosted-checkout payment gateway
// that collects payment out of process and reports outcomes through webhook
// events.
package gateway

import "context"

type Gateway interface {
	// CreateSession opens a hosted payment collection flow for the given
	// line items. Metadata is echoed back verbatim in later events and is
	// the primary correlation channel.
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)

	// RetrieveSession returns the live state of a session.
	RetrieveSession(ctx context.Context, id string) (*Session, error)

	// ListSessionsByPaymentRef finds the session linked to a completed
	// charge, if any. Returns (nil, nil) when no session is linked.
	ListSessionsByPaymentRef(ctx context.Context, paymentRef string) (*Session, error)

	// ListSessionsByOrder finds the session whose correlation metadata
	// carries the given order identifier. Returns (nil, nil) when none
	// exists. Used by the sweeper; drafts do not store their session
	// reference until reconciliation.
	ListSessionsByOrder(ctx context.Context, orderID string) (*Session, error)
}

// MetadataOrderID is the metadata key carrying the local order identifier.
const MetadataOrderID = "orderId"

// MetadataUserID carries the authenticated caller, when there is one.
const MetadataUserID = "userId"

type CreateSessionParams struct {
	LineItems     []LineItem        `json:"line_items"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// LineItem amounts are minor units (pence, cents).
type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Quantity   int    `json:"quantity"`
}

// Session is the gateway's view of a payment collection flow.
type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentRef    string            `json:"payment_ref"`
	Status        string            `json:"status"`         // open | complete | expired
	PaymentStatus string            `json:"payment_status"` // unpaid | paid
	AmountTotal   int64             `json:"amount_total"`   // minor units
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// Settled reports whether the gateway considers the session paid.
func (s *Session) Settled() bool {
	return s.PaymentStatus == "paid" || s.Status == "complete"
}

// Expired reports a session the customer abandoned; the gateway will never
// settle it.
func (s *Session) Expired() bool {
	return s.Status == "expired"
}

// OrderID returns the correlation metadata set at session creation, or ""
// when the session carries none.
func (s *Session) OrderID() string {
	return s.Metadata[MetadataOrderID]
}

// Payment is the wire shape of a payment.succeeded event. Amount is minor
// units.
type Payment struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

func (p *Payment) OrderID() string {
	return p.Metadata[MetadataOrderID]
}

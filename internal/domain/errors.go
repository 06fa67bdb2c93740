package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrEmptyCart rejects a checkout with no cart lines.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrBadSignature means the webhook payload could not be authenticated.
	// The payload is never parsed when this is returned.
	ErrBadSignature = errors.New("invalid webhook signature")

	// ErrRefConflict is a unique-constraint violation on an external
	// reference. Under concurrent duplicate delivery this means another
	// handler already reconciled the payment; callers treat it as a no-op.
	ErrRefConflict = errors.New("external reference already reconciled")
)

// InvalidCartError rejects a checkout whose product references do not all
// resolve against the catalog. Partial matches fail the whole request.
type InvalidCartError struct {
	Missing []uuid.UUID
}

func (e *InvalidCartError) Error() string {
	return fmt.Sprintf("invalid cart items: %d unresolvable product(s)", len(e.Missing))
}

// GatewayError wraps an upstream gateway failure. It is surfaced to the
// caller of the failing operation only and never retried by this service.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

package domain

import (
	"encoding/json"
	"fmt"
)

// Gateway event types this service reconciles. Anything else is acknowledged
// and ignored so that new gateway event types never fail delivery.
const (
	EventSessionCompleted = "checkout.session.completed"
	EventPaymentSucceeded = "payment.succeeded"
)

// Event is the authenticated webhook envelope. Data stays raw until the
// resolver decodes the per-type payload.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes an envelope from verified raw bytes. It must only be
// called after signature verification; the signature covers the exact bytes.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	return ev, nil
}

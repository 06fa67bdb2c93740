package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is an in-memory FastPay used by tests and local runs. Sessions
// stay open until a test completes them.
type MockGateway struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// CreateErr, when set, makes CreateSession fail.
	CreateErr error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{sessions: make(map[string]*Session)}
}

func (m *MockGateway) CreateSession(_ context.Context, params CreateSessionParams) (*Session, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	var total int64
	for _, it := range params.LineItems {
		total += it.UnitAmount * int64(it.Quantity)
	}

	currency := ""
	if len(params.LineItems) > 0 {
		currency = params.LineItems[0].Currency
	}

	id := "fs_" + uuid.NewString()
	session := &Session{
		ID:            id,
		URL:           fmt.Sprintf("https://pay.fastpay.test/s/%s", id),
		Status:        "open",
		PaymentStatus: "unpaid",
		AmountTotal:   total,
		Currency:      currency,
		CustomerEmail: params.CustomerEmail,
		Metadata:      params.Metadata,
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	return copySession(session), nil
}

func (m *MockGateway) RetrieveSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session: %s", id)
	}
	return copySession(session), nil
}

func (m *MockGateway) ListSessionsByPaymentRef(_ context.Context, paymentRef string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.PaymentRef == paymentRef {
			return copySession(session), nil
		}
	}
	return nil, nil
}

func (m *MockGateway) ListSessionsByOrder(_ context.Context, orderID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.Metadata[MetadataOrderID] == orderID {
			return copySession(session), nil
		}
	}
	return nil, nil
}

// Complete settles a session with the given payment reference and reported
// email, simulating the customer paying at the gateway.
func (m *MockGateway) Complete(id, paymentRef, email string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such session: %s", id)
	}
	session.Status = "complete"
	session.PaymentStatus = "paid"
	session.PaymentRef = paymentRef
	if email != "" {
		session.CustomerEmail = email
	}
	return copySession(session), nil
}

// Expire abandons a session.
func (m *MockGateway) Expire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("no such session: %s", id)
	}
	session.Status = "expired"
	return nil
}

func copySession(s *Session) *Session {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

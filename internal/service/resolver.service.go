package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"checkout-core/internal/domain"
	"checkout-core/internal/gateway"
	"checkout-core/internal/repo"
)

// Resolver turns authenticated gateway events into exactly-once order
// transitions. Every write it issues is conditional, so concurrent duplicate
// deliveries collapse into one effective transition regardless of arrival
// order.
type Resolver struct {
	orders  repo.OrderRepo
	users   repo.UserDirectory
	gateway gateway.Gateway

	currency currency.Unit
	logger   *slog.Logger
}

func NewResolver(orders repo.OrderRepo, users repo.UserDirectory, gw gateway.Gateway, cur currency.Unit, logger *slog.Logger) *Resolver {
	return &Resolver{
		orders:   orders,
		users:    users,
		gateway:  gw,
		currency: cur,
		logger:   logger,
	}
}

// HandleEvent dispatches on the event type. Unrecognized types are logged
// and acknowledged; a gateway adding event types must not fail delivery.
func (r *Resolver) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventSessionCompleted:
		var session gateway.Session
		if err := json.Unmarshal(ev.Data, &session); err != nil {
			return fmt.Errorf("decode session event: %w", err)
		}
		return r.ReconcileSession(ctx, &session)

	case domain.EventPaymentSucceeded:
		var payment gateway.Payment
		if err := json.Unmarshal(ev.Data, &payment); err != nil {
			return fmt.Errorf("decode payment event: %w", err)
		}
		return r.reconcilePayment(ctx, &payment)

	default:
		r.logger.Info("ignoring unhandled event type", "type", ev.Type, "event_id", ev.ID)
		return nil
	}
}

// resolution is one step of the priority-ordered chain: it either consumes
// the event (handled) or passes it to the next strategy.
type resolution struct {
	name  string
	apply func(ctx context.Context) (bool, error)
}

func (r *Resolver) run(ctx context.Context, eventType string, chain []resolution) error {
	for _, step := range chain {
		handled, err := step.apply(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		if handled {
			r.logger.Info("event consumed", "type", eventType, "strategy", step.name)
			return nil
		}
	}
	return nil
}

// ReconcileSession applies a completed session to the store. Exported
// because the sweeper reuses it when it finds a settled session the webhook
// never reported.
func (r *Resolver) ReconcileSession(ctx context.Context, session *gateway.Session) error {
	return r.run(ctx, domain.EventSessionCompleted, []resolution{
		{"session metadata", func(ctx context.Context) (bool, error) {
			orderID := session.OrderID()
			if orderID == "" {
				return false, nil
			}
			return true, r.settleDraft(ctx, orderID, settlement{
				sessionRef: &session.ID,
				paymentRef: optional(session.PaymentRef),
				amount:     r.settledAmount(session.AmountTotal, session.Currency),
				email:      session.CustomerEmail,
			})
		}},
		{"existing session ref", func(ctx context.Context) (bool, error) {
			existing, err := r.orders.FindBySessionRef(ctx, session.ID)
			if err != nil {
				return false, err
			}
			if existing == nil {
				return false, nil
			}
			r.logger.Info("duplicate delivery for session", "session_ref", session.ID)
			return true, nil
		}},
		{"fallback create", func(ctx context.Context) (bool, error) {
			return true, r.fallbackCreate(ctx, &session.ID, optional(session.PaymentRef),
				session.AmountTotal, session.Currency, session.CustomerEmail)
		}},
	})
}

func (r *Resolver) reconcilePayment(ctx context.Context, payment *gateway.Payment) error {
	return r.run(ctx, domain.EventPaymentSucceeded, []resolution{
		// Direct metadata correlation always wins over cross-reference
		// lookup.
		{"payment metadata", func(ctx context.Context) (bool, error) {
			orderID := payment.OrderID()
			if orderID == "" {
				return false, nil
			}
			return true, r.settleDraft(ctx, orderID, settlement{
				paymentRef: &payment.ID,
				amount:     r.settledAmount(payment.Amount, payment.Currency),
				email:      payment.Email,
			})
		}},
		{"existing payment ref", func(ctx context.Context) (bool, error) {
			existing, err := r.orders.FindByPaymentRef(ctx, payment.ID)
			if err != nil {
				return false, err
			}
			if existing == nil {
				return false, nil
			}
			r.logger.Info("duplicate delivery for payment", "payment_ref", payment.ID)
			return true, nil
		}},
		{"linked session", func(ctx context.Context) (bool, error) {
			session, err := r.gateway.ListSessionsByPaymentRef(ctx, payment.ID)
			if err != nil {
				return false, err
			}
			if session == nil {
				return false, nil
			}

			if orderID := session.OrderID(); orderID != "" {
				return true, r.settleDraft(ctx, orderID, settlement{
					sessionRef: &session.ID,
					paymentRef: &payment.ID,
					amount:     r.settledAmount(session.AmountTotal, session.Currency),
					email:      firstNonEmpty(session.CustomerEmail, payment.Email),
				})
			}

			// A session exists but carries no correlation. Key the order
			// by the session reference so a later session event is seen
			// as a duplicate.
			existing, err := r.orders.FindBySessionRef(ctx, session.ID)
			if err != nil {
				return false, err
			}
			if existing != nil {
				r.logger.Info("duplicate delivery for payment's session", "session_ref", session.ID)
				return true, nil
			}
			return true, r.fallbackCreate(ctx, &session.ID, &payment.ID,
				session.AmountTotal, session.Currency, firstNonEmpty(session.CustomerEmail, payment.Email))
		}},
		{"fallback create", func(ctx context.Context) (bool, error) {
			return true, r.fallbackCreate(ctx, nil, &payment.ID,
				payment.Amount, payment.Currency, payment.Email)
		}},
	})
}

type settlement struct {
	sessionRef *string
	paymentRef *string
	amount     *decimal.Decimal
	email      string
}

// settleDraft is the primary path: the event carries the order identifier
// set at draft time. A correlation pointing nowhere is logged and dropped;
// it is a data-integrity anomaly, not a transient condition worth retrying.
func (r *Resolver) settleDraft(ctx context.Context, rawOrderID string, st settlement) error {
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		r.logger.Error("event metadata carries malformed order id", "order_id", rawOrderID)
		return nil
	}

	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("orders.FindByID: %w", err)
	}
	if order == nil {
		r.logger.Error("event correlates to unknown order", "order_id", orderID)
		return nil
	}
	if order.Settled() {
		r.logger.Info("order already reconciled", "order_id", orderID)
		return nil
	}

	ok, err := r.orders.Settle(ctx, repo.SettleParams{
		OrderID:       order.ID,
		SessionRef:    st.sessionRef,
		PaymentRef:    st.paymentRef,
		Email:         r.backfillEmail(ctx, order, st.email),
		SettledAmount: st.amount,
	})
	if errors.Is(err, domain.ErrRefConflict) {
		r.logger.Info("concurrent delivery already reconciled order", "order_id", orderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("orders.Settle: %w", err)
	}
	if !ok {
		// The read above raced another delivery; the conditional write is
		// the authority.
		r.logger.Info("order settled by concurrent delivery", "order_id", orderID)
	}
	return nil
}

// backfillEmail picks the email to backfill an absent customer_email with:
// the known user record first, then the gateway-reported address.
func (r *Resolver) backfillEmail(ctx context.Context, order *domain.Order, gatewayEmail string) *string {
	if order.CustomerEmail != nil {
		return nil
	}

	if order.UserRef != nil {
		user, err := r.users.FindByID(ctx, *order.UserRef)
		if err != nil {
			r.logger.Error("user lookup for email backfill failed", "user_ref", *order.UserRef, "err", err)
		} else if user != nil && user.Email != "" {
			return &user.Email
		}
	}

	return optional(gatewayEmail)
}

// fallbackCreate records a confirmed payment that no draft can be attached
// to. Trading completeness for never silently losing settled money: the
// order is created PLACED/PAID with an empty snapshot and flagged for manual
// reconciliation.
func (r *Resolver) fallbackCreate(ctx context.Context, sessionRef, paymentRef *string, minorAmount int64, currencyCode, email string) error {
	amount := decimal.Zero
	if settled := r.settledAmount(minorAmount, currencyCode); settled != nil {
		amount = *settled
	}

	order := &domain.Order{
		ID:            uuid.New(),
		SessionRef:    sessionRef,
		PaymentRef:    paymentRef,
		Amount:        amount,
		Currency:      r.parseCurrency(currencyCode),
		Items:         []domain.OrderItem{},
		CustomerEmail: optional(email),
		PaymentStatus: domain.PaymentPaid,
		OrderStatus:   domain.OrderPlaced,
		NeedsReview:   true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	err := r.orders.InsertReconciled(ctx, order)
	if errors.Is(err, domain.ErrRefConflict) {
		r.logger.Info("concurrent delivery already created fallback order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("orders.InsertReconciled: %w", err)
	}

	r.logger.Warn("created fallback order for unattached payment",
		"order_id", order.ID, "needs_review", true)
	return nil
}

// settledAmount converts the gateway-confirmed amount; zero means the
// gateway reported nothing and the drafted amount stands.
func (r *Resolver) settledAmount(minorAmount int64, currencyCode string) *decimal.Decimal {
	if minorAmount == 0 {
		return nil
	}
	amount := fromMinorUnits(minorAmount)
	return &amount
}

func (r *Resolver) parseCurrency(code string) currency.Unit {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return r.currency
	}
	return unit
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"checkout-core/internal/domain"
)

type OrderRepo interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindBySessionRef(ctx context.Context, sessionRef string) (*domain.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (*domain.Order, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	FindStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)

	// Settle applies the idempotent PENDING -> PLACED/PAID transition. It
	// returns false when the order was already settled or cancelled, which
	// callers treat as a duplicate delivery. A unique violation on either
	// external reference surfaces as domain.ErrRefConflict.
	Settle(ctx context.Context, params SettleParams) (bool, error)

	// InsertReconciled creates an order directly in PLACED/PAID state,
	// keyed by an external reference. domain.ErrRefConflict means another
	// delivery already created it.
	InsertReconciled(ctx context.Context, order *domain.Order) error

	// Cancel moves a still-pending draft to CANCELLED/FAILED.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
}

// SettleParams carries everything a confirmation event contributes to a
// draft. Email only backfills an absent value; SettledAmount only overwrites
// a draft that has not settled yet, which the PENDING guard already ensures.
type SettleParams struct {
	OrderID       uuid.UUID
	SessionRef    *string
	PaymentRef    *string
	Email         *string
	SettledAmount *decimal.Decimal
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, fastpay_session_id, fastpay_payment_id, user_id, address_id,
	amount, currency, items, shipping, customer_email,
	payment_status, order_status, needs_review, settled_at, created_at, updated_at`

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	items, shipping, err := encodeSnapshots(order)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, fastpay_session_id, fastpay_payment_id, user_id, address_id,
			amount, currency, items, shipping, customer_email,
			payment_status, order_status, needs_review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		order.ID, order.SessionRef, order.PaymentRef, order.UserRef, order.AddressRef,
		order.Amount, order.Currency.String(), items, shipping, order.CustomerEmail,
		order.PaymentStatus, order.OrderStatus, order.NeedsReview, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapConflict(err))
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

func (r *orderRepo) FindBySessionRef(ctx context.Context, sessionRef string) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT "+orderColumns+" FROM orders WHERE fastpay_session_id = $1", sessionRef)
}

func (r *orderRepo) FindByPaymentRef(ctx context.Context, paymentRef string) (*domain.Order, error) {
	return r.findOne(ctx, "SELECT "+orderColumns+" FROM orders WHERE fastpay_payment_id = $1", paymentRef)
}

func (r *orderRepo) findOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	order, err := scanOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) FindByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return r.findMany(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC",
		userID,
	)
}

func (r *orderRepo) FindStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	return r.findMany(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE order_status = 'PENDING' AND updated_at < $1",
		time.Now().Add(-olderThan),
	)
}

func (r *orderRepo) findMany(ctx context.Context, query string, arg any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *orderRepo) Settle(ctx context.Context, params SettleParams) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET fastpay_session_id = $2,
		    fastpay_payment_id = $3,
		    payment_status = 'PAID',
		    order_status = 'PLACED',
		    customer_email = COALESCE(customer_email, $4),
		    amount = COALESCE($5, amount),
		    settled_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND order_status = 'PENDING'
		  AND fastpay_session_id IS NULL
		  AND fastpay_payment_id IS NULL`,
		params.OrderID, params.SessionRef, params.PaymentRef, params.Email, params.SettledAmount,
	)
	if err != nil {
		return false, fmt.Errorf("settle order: %w", mapConflict(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *orderRepo) InsertReconciled(ctx context.Context, order *domain.Order) error {
	items, shipping, err := encodeSnapshots(order)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, fastpay_session_id, fastpay_payment_id, user_id, address_id,
			amount, currency, items, shipping, customer_email,
			payment_status, order_status, needs_review, settled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), $14, $15)`,
		order.ID, order.SessionRef, order.PaymentRef, order.UserRef, order.AddressRef,
		order.Amount, order.Currency.String(), items, shipping, order.CustomerEmail,
		order.PaymentStatus, order.OrderStatus, order.NeedsReview, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reconciled order: %w", mapConflict(err))
	}
	return nil
}

func (r *orderRepo) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status = 'CANCELLED', payment_status = 'FAILED', updated_at = now()
		WHERE id = $1 AND order_status = 'PENDING'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// mapConflict folds postgres unique violations on the sparse-unique external
// reference indexes into domain.ErrRefConflict.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", domain.ErrRefConflict, pgErr.ConstraintName)
	}
	return err
}

func encodeSnapshots(order *domain.Order) ([]byte, []byte, error) {
	items := order.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal items: %w", err)
	}

	var shippingJSON []byte
	if order.Shipping != nil {
		shippingJSON, err = json.Marshal(order.Shipping)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal shipping: %w", err)
		}
	}
	return itemsJSON, shippingJSON, nil
}

func scanOrder(scan func(dest ...any) error) (*domain.Order, error) {
	var (
		order        domain.Order
		currencyCode string
		itemsJSON    []byte
		shippingJSON []byte
	)

	err := scan(
		&order.ID,
		&order.SessionRef,
		&order.PaymentRef,
		&order.UserRef,
		&order.AddressRef,
		&order.Amount,
		&currencyCode,
		&itemsJSON,
		&shippingJSON,
		&order.CustomerEmail,
		&order.PaymentStatus,
		&order.OrderStatus,
		&order.NeedsReview,
		&order.SettledAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Currency, err = currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if len(shippingJSON) > 0 {
		order.Shipping = &domain.ShippingSnapshot{}
		if err := json.Unmarshal(shippingJSON, order.Shipping); err != nil {
			return nil, fmt.Errorf("unmarshal shipping: %w", err)
		}
	}

	return &order, nil
}

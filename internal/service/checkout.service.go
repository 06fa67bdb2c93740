package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"checkout-core/internal/domain"
	"checkout-core/internal/gateway"
	"checkout-core/internal/repo"
)

// CartLine is a client-supplied cart entry. Quantity is coerced to a
// positive integer; any price the client sends is ignored.
type CartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type CheckoutRequest struct {
	Items     []CartLine
	AddressID *uuid.UUID
	UserID    *uuid.UUID
}

type CheckoutService interface {
	// Checkout validates the cart, persists a PENDING draft and opens a
	// gateway session. It returns the gateway's redirect URL.
	Checkout(ctx context.Context, req CheckoutRequest) (string, error)

	// Verify reports whether the gateway considers the session settled.
	// It reads the gateway live and never touches the store.
	Verify(ctx context.Context, sessionID string) (bool, error)
}

type checkoutService struct {
	orders    repo.OrderRepo
	catalog   repo.Catalog
	addresses repo.AddressDirectory
	users     repo.UserDirectory
	gateway   gateway.Gateway

	currency    currency.Unit
	frontendURL string
	logger      *slog.Logger
}

func NewCheckoutService(
	orders repo.OrderRepo,
	catalog repo.Catalog,
	addresses repo.AddressDirectory,
	users repo.UserDirectory,
	gw gateway.Gateway,
	cur currency.Unit,
	frontendURL string,
	logger *slog.Logger,
) CheckoutService {
	return &checkoutService{
		orders:      orders,
		catalog:     catalog,
		addresses:   addresses,
		users:       users,
		gateway:     gw,
		currency:    cur,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

func (s *checkoutService) Checkout(ctx context.Context, req CheckoutRequest) (string, error) {
	if len(req.Items) == 0 {
		return "", domain.ErrEmptyCart
	}

	items, err := s.buildSnapshot(ctx, req.Items)
	if err != nil {
		return "", err
	}

	order := &domain.Order{
		ID:            uuid.New(),
		UserRef:       req.UserID,
		Amount:        domain.ItemsTotal(items),
		Currency:      s.currency,
		Items:         items,
		PaymentStatus: domain.PaymentPending,
		OrderStatus:   domain.OrderPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	var user *domain.User
	if req.UserID != nil {
		user, err = s.users.FindByID(ctx, *req.UserID)
		if err != nil {
			return "", fmt.Errorf("users.FindByID: %w", err)
		}
		if user != nil {
			order.CustomerEmail = &user.Email
		}
	}

	if err := s.resolveShipping(ctx, req, order); err != nil {
		return "", err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return "", err
	}

	// The draft is committed before the gateway call. If the call fails the
	// PENDING row stays behind; it never transitions and the sweeper
	// eventually cancels it.
	session, err := s.createSession(ctx, order, user)
	if err != nil {
		s.logger.Error("gateway session creation failed", "order_id", order.ID, "err", err)
		if _, ok := err.(*domain.GatewayError); ok {
			return "", err
		}
		return "", &domain.GatewayError{Op: "create session", Err: err}
	}

	return session.URL, nil
}

func (s *checkoutService) buildSnapshot(ctx context.Context, lines []CartLine) ([]domain.OrderItem, error) {
	ids := lo.Uniq(lo.Map(lines, func(l CartLine, _ int) uuid.UUID {
		return l.ProductID
	}))

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog.FindByIDs: %w", err)
	}

	missing := lo.Filter(ids, func(id uuid.UUID, _ int) bool {
		_, ok := products[id]
		return !ok
	})
	if len(missing) > 0 {
		return nil, &domain.InvalidCartError{Missing: missing}
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product := products[line.ProductID]

		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  quantity,
		})
	}
	return items, nil
}

// resolveShipping prefers the explicit address when it belongs to the
// caller, then the caller's default saved address, else no snapshot.
func (s *checkoutService) resolveShipping(ctx context.Context, req CheckoutRequest, order *domain.Order) error {
	if req.UserID == nil {
		return nil
	}

	var (
		address *domain.Address
		err     error
	)

	if req.AddressID != nil {
		address, err = s.addresses.FindForUser(ctx, *req.AddressID, *req.UserID)
		if err != nil {
			return fmt.Errorf("addresses.FindForUser: %w", err)
		}
	}
	if address == nil {
		address, err = s.addresses.FindDefault(ctx, *req.UserID)
		if err != nil {
			return fmt.Errorf("addresses.FindDefault: %w", err)
		}
	}
	if address == nil {
		return nil
	}

	order.AddressRef = &address.ID
	order.Shipping = address.Snapshot()
	return nil
}

func (s *checkoutService) createSession(ctx context.Context, order *domain.Order, user *domain.User) (*gateway.Session, error) {
	metadata := map[string]string{
		gateway.MetadataOrderID: order.ID.String(),
	}
	if order.UserRef != nil {
		metadata[gateway.MetadataUserID] = order.UserRef.String()
	}

	params := gateway.CreateSessionParams{
		LineItems: lo.Map(order.Items, func(it domain.OrderItem, _ int) gateway.LineItem {
			return gateway.LineItem{
				Name:       it.Name,
				UnitAmount: minorUnits(it.Price),
				Currency:   order.Currency.String(),
				Quantity:   it.Quantity,
			}
		}),
		SuccessURL: s.frontendURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/payment/failed",
		Metadata:   metadata,
	}
	if user != nil {
		params.CustomerEmail = user.Email
	}

	return s.gateway.CreateSession(ctx, params)
}

func (s *checkoutService) Verify(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.Settled(), nil
}

// minorUnits converts a major-unit amount to the gateway's minor units.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// fromMinorUnits converts a gateway-reported minor-unit amount back.
func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Shift(-2)
}

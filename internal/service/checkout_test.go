package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"checkout-core/internal/domain"
	"checkout-core/internal/gateway"
	"checkout-core/internal/service"
)

type checkoutFixture struct {
	orders    *fakeOrderRepo
	catalog   *fakeCatalog
	addresses *fakeAddresses
	users     *fakeUsers
	gw        *gateway.MockGateway
	svc       service.CheckoutService
}

func newCheckoutFixture(products ...domain.Product) *checkoutFixture {
	f := &checkoutFixture{
		orders:    newFakeOrderRepo(),
		catalog:   newFakeCatalog(products...),
		addresses: newFakeAddresses(),
		users:     newFakeUsers(),
		gw:        gateway.NewMockGateway(),
	}
	f.svc = service.NewCheckoutService(
		f.orders, f.catalog, f.addresses, f.users, f.gw,
		currency.GBP, "https://shop.example.com", discardLogger(),
	)
	return f
}

func fakeProduct(price string) domain.Product {
	return domain.Product{
		ID:    uuid.New(),
		Name:  gofakeit.ProductName(),
		Price: decimal.RequireFromString(price),
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, 0, f.orders.count())
}

func TestCheckout_UnresolvableProductRejectsWholeCart(t *testing.T) {
	known := fakeProduct("5.00")
	f := newCheckoutFixture(known)

	_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
		Items: []service.CartLine{
			{ProductID: known.ID, Quantity: 1},
			{ProductID: uuid.New(), Quantity: 2},
		},
	})

	var invalid *domain.InvalidCartError
	require.ErrorAs(t, err, &invalid)
	assert.Len(t, invalid.Missing, 1)
	assert.Equal(t, 0, f.orders.count(), "nothing is persisted when any product is unresolvable")
}

func TestCheckout_AmountComesFromCatalogOnly(t *testing.T) {
	mug := fakeProduct("4.50")
	tee := fakeProduct("12.99")
	f := newCheckoutFixture(mug, tee)

	url, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
		Items: []service.CartLine{
			{ProductID: mug.ID, Quantity: 3},
			{ProductID: tee.ID, Quantity: 0}, // coerced to 1
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	require.Equal(t, 1, f.orders.count())
	var order *domain.Order
	for id := range f.ordersMap() {
		order = f.orders.get(id)
	}
	require.NotNil(t, order)

	// 3 * 4.50 + 1 * 12.99
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("26.49")), "got %s", order.Amount)
	assert.Equal(t, domain.OrderPending, order.OrderStatus)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Nil(t, order.SessionRef)
	assert.Nil(t, order.PaymentRef)
}

func (f *checkoutFixture) ordersMap() map[uuid.UUID]*domain.Order {
	f.orders.mu.Lock()
	defer f.orders.mu.Unlock()
	out := make(map[uuid.UUID]*domain.Order, len(f.orders.orders))
	for id, o := range f.orders.orders {
		out[id] = o
	}
	return out
}

func TestCheckout_SameCartTwiceMakesTwoDistinctDrafts(t *testing.T) {
	mug := fakeProduct("4.50")
	f := newCheckoutFixture(mug)

	req := service.CheckoutRequest{Items: []service.CartLine{{ProductID: mug.ID, Quantity: 1}}}

	_, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, f.orders.count())
	for _, o := range f.ordersMap() {
		assert.Equal(t, domain.OrderPending, o.OrderStatus)
	}
}

func TestCheckout_SessionCarriesOrderCorrelation(t *testing.T) {
	mug := fakeProduct("4.50")
	f := newCheckoutFixture(mug)

	userID := uuid.New()
	f.users.users[userID] = &domain.User{ID: userID, Email: "buyer@example.com"}

	_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
		Items:  []service.CartLine{{ProductID: mug.ID, Quantity: 2}},
		UserID: &userID,
	})
	require.NoError(t, err)

	var orderID uuid.UUID
	for id := range f.ordersMap() {
		orderID = id
	}

	session, err := f.gw.ListSessionsByOrder(context.Background(), orderID.String())
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, orderID.String(), session.Metadata[gateway.MetadataOrderID])
	assert.Equal(t, userID.String(), session.Metadata[gateway.MetadataUserID])
	assert.Equal(t, int64(900), session.AmountTotal, "line items are minor units")
	assert.Equal(t, "buyer@example.com", session.CustomerEmail)
}

func TestCheckout_GatewayFailureKeepsDraft(t *testing.T) {
	mug := fakeProduct("4.50")
	f := newCheckoutFixture(mug)
	f.gw.CreateErr = errors.New("connection timeout")

	_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
		Items: []service.CartLine{{ProductID: mug.ID, Quantity: 1}},
	})

	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)

	// The PENDING row is retained; it never transitions and the sweeper
	// will cancel it.
	assert.Equal(t, 1, f.orders.count())
	for _, o := range f.ordersMap() {
		assert.Equal(t, domain.OrderPending, o.OrderStatus)
	}
}

func TestCheckout_ShippingSnapshotResolution(t *testing.T) {
	mug := fakeProduct("4.50")

	userID := uuid.New()
	explicit := &domain.Address{ID: uuid.New(), UserID: userID, City: "Leeds"}
	fallback := &domain.Address{ID: uuid.New(), UserID: userID, City: "York", IsDefault: true}
	foreign := &domain.Address{ID: uuid.New(), UserID: uuid.New(), City: "Bath"}

	t.Run("explicit address belonging to the caller", func(t *testing.T) {
		f := newCheckoutFixture(mug)
		f.addresses.addresses[explicit.ID] = explicit
		f.addresses.addresses[fallback.ID] = fallback

		_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
			Items:     []service.CartLine{{ProductID: mug.ID}},
			UserID:    &userID,
			AddressID: &explicit.ID,
		})
		require.NoError(t, err)

		for _, o := range f.ordersMap() {
			require.NotNil(t, o.Shipping)
			assert.Equal(t, "Leeds", o.Shipping.City)
		}
	})

	t.Run("foreign address falls back to default", func(t *testing.T) {
		f := newCheckoutFixture(mug)
		f.addresses.addresses[foreign.ID] = foreign
		f.addresses.addresses[fallback.ID] = fallback

		_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
			Items:     []service.CartLine{{ProductID: mug.ID}},
			UserID:    &userID,
			AddressID: &foreign.ID,
		})
		require.NoError(t, err)

		for _, o := range f.ordersMap() {
			require.NotNil(t, o.Shipping)
			assert.Equal(t, "York", o.Shipping.City)
		}
	})

	t.Run("no addresses at all", func(t *testing.T) {
		f := newCheckoutFixture(mug)

		_, err := f.svc.Checkout(context.Background(), service.CheckoutRequest{
			Items:  []service.CartLine{{ProductID: mug.ID}},
			UserID: &userID,
		})
		require.NoError(t, err)

		for _, o := range f.ordersMap() {
			assert.Nil(t, o.Shipping)
		}
	})
}

func TestVerify_ReflectsLiveGatewayState(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()

	session, err := f.gw.CreateSession(ctx, gateway.CreateSessionParams{})
	require.NoError(t, err)

	settled, err := f.svc.Verify(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, settled, "open session is not settled")

	_, err = f.gw.Complete(session.ID, "pay_v", "")
	require.NoError(t, err)

	settled, err = f.svc.Verify(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, settled, "settled independent of any webhook arrival")
}

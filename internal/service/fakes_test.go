package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkout-core/internal/domain"
	"checkout-core/internal/repo"
)

// fakeOrderRepo mirrors the store's conditional-write semantics in memory,
// including the sparse-unique external reference constraints.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order

	settleErr error
	createErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (f *fakeOrderRepo) put(order *domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *order
	f.orders[order.ID] = &clone
}

func (f *fakeOrderRepo) get(id uuid.UUID) *domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[id]; ok {
		clone := *o
		return &clone
	}
	return nil
}

func (f *fakeOrderRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeOrderRepo) refTaken(sessionRef, paymentRef *string) bool {
	for _, o := range f.orders {
		if sessionRef != nil && o.SessionRef != nil && *o.SessionRef == *sessionRef {
			return true
		}
		if paymentRef != nil && o.PaymentRef != nil && *o.PaymentRef == *paymentRef {
			return true
		}
	}
	return false
}

func (f *fakeOrderRepo) Create(_ context.Context, order *domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refTaken(order.SessionRef, order.PaymentRef) {
		return domain.ErrRefConflict
	}
	clone := *order
	f.orders[order.ID] = &clone
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	return f.get(id), nil
}

func (f *fakeOrderRepo) FindBySessionRef(_ context.Context, ref string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.SessionRef != nil && *o.SessionRef == ref {
			clone := *o
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderRepo) FindByPaymentRef(_ context.Context, ref string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.PaymentRef != nil && *o.PaymentRef == ref {
			clone := *o
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.orders {
		if o.UserRef != nil && *o.UserRef == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) FindStuck(_ context.Context, olderThan time.Duration) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Order
	for _, o := range f.orders {
		if o.OrderStatus == domain.OrderPending && o.UpdatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) Settle(_ context.Context, params repo.SettleParams) (bool, error) {
	if f.settleErr != nil {
		return false, f.settleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[params.OrderID]
	if !ok || order.OrderStatus != domain.OrderPending || order.Settled() {
		return false, nil
	}
	if f.refTaken(params.SessionRef, params.PaymentRef) {
		return false, domain.ErrRefConflict
	}

	order.SessionRef = params.SessionRef
	order.PaymentRef = params.PaymentRef
	order.PaymentStatus = domain.PaymentPaid
	order.OrderStatus = domain.OrderPlaced
	if order.CustomerEmail == nil {
		order.CustomerEmail = params.Email
	}
	if params.SettledAmount != nil {
		order.Amount = *params.SettledAmount
	}
	now := time.Now()
	order.SettledAt = &now
	order.UpdatedAt = now
	return true, nil
}

func (f *fakeOrderRepo) InsertReconciled(_ context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refTaken(order.SessionRef, order.PaymentRef) {
		return domain.ErrRefConflict
	}
	clone := *order
	f.orders[order.ID] = &clone
	return nil
}

func (f *fakeOrderRepo) Cancel(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.OrderStatus != domain.OrderPending {
		return false, nil
	}
	order.OrderStatus = domain.OrderCancelled
	order.PaymentStatus = domain.PaymentFailed
	order.UpdatedAt = time.Now()
	return true, nil
}

type fakeUsers struct {
	users map[uuid.UUID]*domain.User
}

func newFakeUsers(users ...*domain.User) *fakeUsers {
	f := &fakeUsers{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return f.users[id], nil
}

type fakeCatalog struct {
	products map[uuid.UUID]domain.Product
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	f := &fakeCatalog{products: make(map[uuid.UUID]domain.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCatalog) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error) {
	out := make(map[uuid.UUID]domain.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeAddresses struct {
	addresses map[uuid.UUID]*domain.Address
}

func newFakeAddresses(addresses ...*domain.Address) *fakeAddresses {
	f := &fakeAddresses{addresses: make(map[uuid.UUID]*domain.Address)}
	for _, a := range addresses {
		f.addresses[a.ID] = a
	}
	return f
}

func (f *fakeAddresses) FindForUser(_ context.Context, id, userID uuid.UUID) (*domain.Address, error) {
	a, ok := f.addresses[id]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	return a, nil
}

func (f *fakeAddresses) FindDefault(_ context.Context, userID uuid.UUID) (*domain.Address, error) {
	for _, a := range f.addresses {
		if a.UserID == userID && a.IsDefault {
			return a, nil
		}
	}
	return nil, nil
}

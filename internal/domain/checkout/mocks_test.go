package checkout

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/discount"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// --- Mock implementations ---

type mockMarketplace struct {
	mu sync.Mutex

	addresses    []Address
	addressesErr error
	cart         []CartItem
	cartErr      error
	discounts    []discount.Record
	discountsErr error

	updatedAddress *Address
	updateAddrErr  error

	createReq   *CreateOrderRequest
	createRef   *OrderRef
	createErr   error
	createCalls int
	// createStarted is signalled when CreateOrder is entered; CreateOrder
	// then blocks until createGate is closed.
	createStarted chan struct{}
	createGate    chan struct{}

	updateID   string
	updateReq  *UpdateOrderRequest
	updateRef  *OrderRef
	updateErr  error
	removedIDs [][]string
	removeErr  error
}

func (m *mockMarketplace) Addresses(context.Context) ([]Address, error) {
	return m.addresses, m.addressesErr
}

func (m *mockMarketplace) UpdateAddress(_ context.Context, a Address) (*Address, error) {
	if m.updateAddrErr != nil {
		return nil, m.updateAddrErr
	}
	m.updatedAddress = &a
	return &a, nil
}

func (m *mockMarketplace) Cart(context.Context) ([]CartItem, error) {
	return m.cart, m.cartErr
}

func (m *mockMarketplace) RemoveCartItems(_ context.Context, ids []string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removedIDs = append(m.removedIDs, ids)
	return nil
}

func (m *mockMarketplace) UserDiscounts(context.Context) ([]discount.Record, error) {
	return m.discounts, m.discountsErr
}

func (m *mockMarketplace) CreateOrder(_ context.Context, req CreateOrderRequest) (*OrderRef, error) {
	m.mu.Lock()
	m.createCalls++
	m.createReq = &req
	started, gate := m.createStarted, m.createGate
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	ref := *m.createRef
	return &ref, nil
}

func (m *mockMarketplace) creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func (m *mockMarketplace) UpdateOrder(_ context.Context, orderID string, req UpdateOrderRequest) (*OrderRef, error) {
	m.updateID = orderID
	m.updateReq = &req
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if m.updateRef == nil {
		return &OrderRef{OrderID: orderID}, nil
	}
	ref := *m.updateRef
	return &ref, nil
}

type mockGateway struct {
	url string
	err error

	method    PaymentMethod
	paymentID string
	amount    decimal.Decimal
	calls     int
}

func (m *mockGateway) PaymentURL(_ context.Context, method PaymentMethod, paymentID string, amount decimal.Decimal) (string, error) {
	m.calls++
	m.method = method
	m.paymentID = paymentID
	m.amount = amount
	return m.url, m.err
}

type mockPromos struct {
	state promo.State
	err   error
	calls int
	// onValidate runs before Validate returns.
	onValidate func()
}

func (m *mockPromos) Validate(context.Context, string, decimal.Decimal) (promo.State, error) {
	m.calls++
	if m.onValidate != nil {
		m.onValidate()
	}
	return m.state, m.err
}

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*Session)}
}

func (f *fakeStore) Create(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (f *fakeStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	c := s.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	f.sessions[id] = c
	return c.Clone(), nil
}

type fakeLedger struct {
	records map[string]OrderRecord
	history []OrderStatus
	err     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]OrderRecord)}
}

func (f *fakeLedger) Record(_ context.Context, r OrderRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records[r.OrderID] = r
	f.history = append(f.history, r.Status)
	return nil
}

func (f *fakeLedger) UpdateStatus(_ context.Context, orderID string, status OrderStatus) error {
	r, ok := f.records[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	r.Status = status
	f.records[orderID] = r
	f.history = append(f.history, status)
	return nil
}

func (f *fakeLedger) Get(_ context.Context, orderID string) (*OrderRecord, error) {
	r, ok := f.records[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &r, nil
}

var errBoom = errors.New("boom")

package checkout

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

func receive(t *testing.T, errs <-chan error) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a submission")
		return nil
	}
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("order creation never started")
	}
}

// gate blocks CreateOrder until the returned function is called.
func (f *fixture) gate() (started chan struct{}, open func()) {
	started = make(chan struct{}, 1)
	g := make(chan struct{})
	f.market.mu.Lock()
	f.market.createStarted = started
	f.market.createGate = g
	f.market.mu.Unlock()

	var once sync.Once
	return started, func() { once.Do(func() { close(g) }) }
}

func TestSubmit_ConcurrentCreatesOneOrder(t *testing.T) {
	f := newFixture(t)
	sess := f.ready(t, PaymentCOD)
	started, open := f.gate()
	defer open()

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(f.ctx, sess.ID)
			errs <- err
		}()
	}

	waitStarted(t, started)
	for range callers - 1 {
		require.ErrorIs(t, receive(t, errs), ErrSessionBusy)
	}
	open()
	require.NoError(t, receive(t, errs))
	wg.Wait()

	assert.Equal(t, 1, f.market.creates())
	assert.Equal(t, [][]string{{"c1", "c2"}}, f.market.removedIDs)

	got, err := f.svc.Get(f.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.HoldID)
}

func TestSubmit_HeldSessionRejectsChanges(t *testing.T) {
	f := newFixture(t)
	sess := f.ready(t, PaymentVNPay)
	_, err := f.svc.Vouchers(f.ctx, sess.ID)
	require.NoError(t, err)
	started, open := f.gate()
	defer open()

	type result struct {
		res *SubmitResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := f.svc.Submit(f.ctx, sess.ID)
		done <- result{res, err}
	}()
	waitStarted(t, started)

	held, err := f.svc.Get(f.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, held.Status)

	_, err = f.svc.SelectPaymentMethod(f.ctx, sess.ID, PaymentCOD)
	require.ErrorIs(t, err, ErrSessionBusy)
	_, err = f.svc.SelectShippingMethod(f.ctx, sess.ID, ShippingExpress)
	require.ErrorIs(t, err, ErrSessionBusy)
	_, err = f.svc.ToggleVoucher(f.ctx, sess.ID, "order10")
	require.ErrorIs(t, err, ErrSessionBusy)
	_, err = f.svc.ApplyPromoCode(f.ctx, sess.ID, "SALE20")
	require.ErrorIs(t, err, ErrSessionBusy)
	_, err = f.svc.ConfirmPayment(f.ctx, sess.ID, PaymentResult{Success: true})
	require.ErrorIs(t, err, ErrSessionBusy)
	assert.Zero(t, f.promos.calls)

	open()
	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submission did not finish")
	}
	require.NoError(t, r.err)
	assert.Equal(t, StatusAwaitingPayment, r.res.Session.Status)
	assert.Equal(t, PaymentVNPay, r.res.Session.PaymentMethod)
	assertDec(t, 1_025_000, f.gateway.amount)
}

func TestSubmit_ReleasesHoldOnFailure(t *testing.T) {
	tests := []struct {
		name        string
		method      PaymentMethod
		fail        func(f *fixture)
		wantOrderID string
	}{
		{
			name:   "order creation",
			method: PaymentCOD,
			fail:   func(f *fixture) { f.market.createErr = errBoom },
		},
		{
			name:        "payment gateway",
			method:      PaymentVNPay,
			fail:        func(f *fixture) { f.gateway.err = errBoom },
			wantOrderID: "o1",
		},
		{
			name:        "order ledger",
			method:      PaymentCOD,
			fail:        func(f *fixture) { f.ledger.err = errBoom },
			wantOrderID: "o1",
		},
		{
			name:        "cart clearing",
			method:      PaymentCOD,
			fail:        func(f *fixture) { f.market.removeErr = errBoom },
			wantOrderID: "o1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sess := f.ready(t, tt.method)
			tt.fail(f)

			_, err := f.svc.Submit(f.ctx, sess.ID)
			require.ErrorIs(t, err, errBoom)

			got, err := f.svc.Get(f.ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusOpen, got.Status)
			assert.Empty(t, got.HoldID)
			assert.Empty(t, got.PaymentURL)
			assert.Equal(t, tt.wantOrderID, got.OrderID)

			f.market.createErr = nil
			f.gateway.err = nil
			f.ledger.err = nil
			f.market.removeErr = nil

			_, err = f.svc.Submit(f.ctx, sess.ID)
			require.NoError(t, err, "released session can be submitted again")
			if tt.wantOrderID != "" {
				assert.Equal(t, 1, f.market.creates())
				assert.Equal(t, tt.wantOrderID, f.market.updateID, "resubmission updates the placed order")
			}
		})
	}
}

func TestSubmit_ExpiredHoldTakenOver(t *testing.T) {
	f := newFixture(t)
	sess := f.ready(t, PaymentCOD)

	// A submission that never returned.
	_, err := f.store.Update(f.ctx, sess.ID, func(s *Session) error {
		s.HeldFromStatus = s.Status
		s.Status = StatusProcessing
		s.HoldID = "lost"
		s.HeldAt = f.now
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.Submit(f.ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionBusy)
	_, err = f.svc.SelectShippingMethod(f.ctx, sess.ID, ShippingExpress)
	require.ErrorIs(t, err, ErrSessionBusy)

	f.now = f.now.Add(DefaultHoldTimeout)

	res, err := f.svc.Submit(f.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Session.Status)
	assert.Empty(t, res.Session.HoldID)
}

func TestSubmit_FinishAfterTakeover(t *testing.T) {
	f := newFixture(t)
	sess := f.ready(t, PaymentCOD)
	_, open := f.gate()
	defer open()

	first := make(chan error, 1)
	started := f.market.createStarted
	go func() {
		_, err := f.svc.Submit(f.ctx, sess.ID)
		first <- err
	}()
	waitStarted(t, started)

	// The first submission stalls past the hold timeout and a retry takes
	// the session over.
	f.market.mu.Lock()
	f.market.createStarted = nil
	f.market.createGate = nil
	f.market.mu.Unlock()
	f.now = f.now.Add(DefaultHoldTimeout + time.Second)

	res, err := f.svc.Submit(f.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Session.Status)

	open()
	require.ErrorIs(t, receive(t, first), ErrHoldLost)

	got, err := f.svc.Get(f.ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status, "late submission leaves the session alone")
}

func TestApplyPromoCode_SubmittedDuringValidation(t *testing.T) {
	tests := []struct {
		name    string
		gateway error
		wantErr error
	}{
		{name: "awaiting payment", wantErr: ErrPaymentPending},
		{name: "order placed", gateway: errBoom, wantErr: ErrDiscountsLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sess := f.ready(t, PaymentVNPay)
			f.gateway.err = tt.gateway
			f.promos.state = promo.State{Code: "SALE20", DiscountAmount: d(20_000)}
			f.promos.onValidate = func() {
				_, _ = f.svc.Submit(f.ctx, sess.ID)
			}

			_, err := f.svc.ApplyPromoCode(f.ctx, sess.ID, "SALE20")
			require.ErrorIs(t, err, tt.wantErr)

			got, err := f.svc.Get(f.ctx, sess.ID)
			require.NoError(t, err)
			assert.True(t, got.Promo.IsZero(), "promo validated before the order is not applied after it")
			assertDec(t, 0, got.Discount)
			require.NotNil(t, f.market.createReq)
			assertDec(t, 0, f.market.createReq.Discount)
			assertDec(t, 0, f.ledger.records["o1"].Discount)
			assert.True(t, got.Totals().Total.Equal(f.market.createReq.Total))
		})
	}
}

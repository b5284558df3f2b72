package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	Session *Session
	// RedirectURL is the hosted payment page for online methods, empty for
	// COD.
	RedirectURL string
}

// PaymentResult is what the buyer's browser reports after returning from a
// hosted payment page.
type PaymentResult struct {
	Success bool
}

// requireSubmittable checks what can be checked without a network call.
func requireSubmittable(sess *Session) error {
	if _, ok := sess.Address(); !ok {
		return ErrAddressRequired
	}
	if sess.PaymentMethod == "" {
		return ErrPaymentMethodRequired
	}
	if sess.ShippingMethod == "" {
		return ErrShippingMethodRequired
	}
	return nil
}

// Submit places the order and runs the payment step. A session that already
// carries an order id updates that order instead of creating a new one.
//
// The session is held for the duration of the call: concurrent submissions
// and changes fail with ErrSessionBusy, and every failed step hands the
// session back so it can be submitted again.
//
// COD completes the session and clears the purchased cart items. MOMO and
// VNPAY leave the session awaiting payment and return the gateway's payment
// URL. A gateway failure returns *GatewayError and keeps the order id so the
// next submission updates the same order.
func (s *Service) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	sess, err := s.hold(ctx, id, func(sess *Session) error {
		if sess.Status == StatusCompleted {
			return ErrSessionClosed
		}
		return requireSubmittable(sess)
	})
	if err != nil {
		return nil, err
	}

	method := sess.PaymentMethod
	address, _ := sess.Address()
	totals := sess.Totals()

	ref, err := s.placeOrder(ctx, sess, address)
	if err != nil {
		s.metrics.orderSubmitted(ctx, method, "order_failed", totals.Discount)
		return nil, s.abort(ctx, sess, sess.HeldFromStatus, err)
	}
	sess.OrderID = ref.OrderID
	if ref.PaymentID != "" {
		sess.PaymentID = ref.PaymentID
	}
	if _, err := s.whileHeld(ctx, sess, func(stored *Session) {
		stored.OrderID = sess.OrderID
		stored.PaymentID = sess.PaymentID
	}); err != nil {
		return nil, s.abort(ctx, sess, StatusOpen, errors.Wrap(err, "store order id"))
	}

	if !method.Online() {
		if err := s.record(ctx, sess, OrderPlaced); err != nil {
			return nil, s.abort(ctx, sess, StatusOpen, err)
		}
		if err := s.market.RemoveCartItems(ctx, sess.ItemIDs()); err != nil {
			return nil, s.abort(ctx, sess, StatusOpen, errors.Wrap(err, "clear cart"))
		}
		sess, err = s.release(ctx, sess, StatusCompleted, "")
		if err != nil {
			return nil, err
		}
		s.metrics.orderSubmitted(ctx, method, "completed", totals.Discount)
		return &SubmitResult{Session: sess}, nil
	}

	url, gerr := s.gateway.PaymentURL(ctx, method, sess.PaymentID, totals.Total)
	if gerr != nil {
		s.metrics.orderSubmitted(ctx, method, "gateway_failed", totals.Discount)
		var failure error = &GatewayError{Method: method, Err: gerr}
		if err := s.record(ctx, sess, OrderPaymentFailed); err != nil {
			failure = err
		}
		return nil, s.abort(ctx, sess, StatusOpen, failure)
	}

	if err := s.record(ctx, sess, OrderAwaitingPayment); err != nil {
		return nil, s.abort(ctx, sess, StatusOpen, err)
	}
	sess, err = s.release(ctx, sess, StatusAwaitingPayment, url)
	if err != nil {
		return nil, err
	}
	s.metrics.orderSubmitted(ctx, method, "redirected", totals.Discount)
	return &SubmitResult{Session: sess, RedirectURL: url}, nil
}

// held reports whether a submission or payment confirmation holds sess.
func (s *Service) held(sess *Session) bool {
	return sess.Status == StatusProcessing && s.now().Sub(sess.HeldAt) < s.holdTimeout
}

// dropExpiredHold returns a session whose hold outlived the hold timeout to
// the status it was held from.
func (s *Service) dropExpiredHold(sess *Session) {
	if sess.Status != StatusProcessing || s.held(sess) {
		return
	}
	sess.Status = sess.HeldFromStatus
	if sess.Status == "" {
		sess.Status = StatusOpen
	}
	sess.HoldID = ""
	sess.HeldAt = time.Time{}
	sess.HeldFromStatus = ""
}

// hold marks the session processing under a fresh hold token once check
// accepts it. The returned copy identifies the hold for whileHeld and
// release.
func (s *Service) hold(ctx context.Context, id string, check func(*Session) error) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		s.dropExpiredHold(sess)
		if s.held(sess) {
			return ErrSessionBusy
		}
		if err := check(sess); err != nil {
			return err
		}
		sess.HeldFromStatus = sess.Status
		sess.Status = StatusProcessing
		sess.HoldID = uuid.NewString()
		sess.HeldAt = s.now()
		return nil
	})
}

// whileHeld applies fn to the stored session if held still owns it.
func (s *Service) whileHeld(ctx context.Context, held *Session, fn func(*Session)) (*Session, error) {
	return s.update(ctx, held.ID, func(sess *Session) error {
		if sess.Status != StatusProcessing || sess.HoldID != held.HoldID {
			return ErrHoldLost
		}
		fn(sess)
		return nil
	})
}

// release ends the hold, leaving the session in status with paymentURL and
// the order ids of held. It is detached from ctx cancellation so an
// abandoned request still hands the session back.
func (s *Service) release(ctx context.Context, held *Session, status Status, paymentURL string) (*Session, error) {
	return s.whileHeld(context.WithoutCancel(ctx), held, func(sess *Session) {
		sess.OrderID = held.OrderID
		sess.PaymentID = held.PaymentID
		sess.Status = status
		sess.PaymentURL = paymentURL
		sess.HoldID = ""
		sess.HeldAt = time.Time{}
		sess.HeldFromStatus = ""
	})
}

// abort releases the hold after a failed step and returns err. A release
// that fails leaves the hold to expire.
func (s *Service) abort(ctx context.Context, held *Session, status Status, err error) error {
	url := ""
	if status == StatusAwaitingPayment {
		url = held.PaymentURL
	}
	_, _ = s.release(ctx, held, status, url)
	return err
}

func (s *Service) placeOrder(ctx context.Context, sess *Session, address Address) (*OrderRef, error) {
	if sess.OrderID != "" {
		ref, err := s.market.UpdateOrder(ctx, sess.OrderID, UpdateOrderRequest{
			ShippingFee:   sess.ShippingFee,
			Address:       address,
			PaymentMethod: sess.PaymentMethod,
		})
		if err != nil {
			return nil, errors.Wrap(err, "update order")
		}
		if ref.OrderID == "" {
			ref.OrderID = sess.OrderID
		}
		return ref, nil
	}

	totals := sess.Totals()
	ref, err := s.market.CreateOrder(ctx, CreateOrderRequest{
		Items:         sess.Items,
		ShippingFee:   sess.ShippingFee,
		Address:       address,
		Total:         totals.Total,
		PaymentMethod: sess.PaymentMethod,
		Discount:      totals.Discount,
		VoucherIDs:    sess.Selection.IDs(),
		PromoCode:     sess.Promo.Code,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if ref.OrderID == "" {
		return nil, errors.New("create order: marketplace returned no order id")
	}
	return ref, nil
}

func (s *Service) record(ctx context.Context, sess *Session, status OrderStatus) error {
	totals := sess.Totals()
	now := s.now()
	err := s.ledger.Record(ctx, OrderRecord{
		OrderID:        sess.OrderID,
		PaymentID:      sess.PaymentID,
		SessionID:      sess.ID,
		Owner:          sess.Owner,
		PaymentMethod:  sess.PaymentMethod,
		ShippingMethod: sess.ShippingMethod,
		Subtotal:       totals.Subtotal,
		ShippingFee:    totals.ShippingFee,
		Discount:       totals.Discount,
		Total:          totals.Total,
		PromoCode:      sess.Promo.Code,
		VoucherIDs:     sess.Selection.IDs(),
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return errors.Wrap(err, "record order")
	}
	return nil
}

// ConfirmPayment completes a session awaiting payment. On success the
// purchased cart items are cleared and the session closes; on failure the
// session reopens so another method can be chosen. A step that fails
// leaves the session awaiting payment.
func (s *Service) ConfirmPayment(ctx context.Context, id string, res PaymentResult) (*Session, error) {
	sess, err := s.hold(ctx, id, func(sess *Session) error {
		switch sess.Status {
		case StatusAwaitingPayment:
			return nil
		case StatusCompleted:
			return ErrSessionClosed
		default:
			return ErrNotAwaitingPayment
		}
	})
	if err != nil {
		return nil, err
	}

	if !res.Success {
		if err := s.ledger.UpdateStatus(ctx, sess.OrderID, OrderPaymentFailed); err != nil {
			return nil, s.abort(ctx, sess, StatusAwaitingPayment, errors.Wrap(err, "update order status"))
		}
		return s.release(ctx, sess, StatusOpen, "")
	}

	if err := s.market.RemoveCartItems(ctx, sess.ItemIDs()); err != nil {
		return nil, s.abort(ctx, sess, StatusAwaitingPayment, errors.Wrap(err, "clear cart"))
	}
	if err := s.ledger.UpdateStatus(ctx, sess.OrderID, OrderPaid); err != nil {
		return nil, s.abort(ctx, sess, StatusAwaitingPayment, errors.Wrap(err, "update order status"))
	}
	return s.release(ctx, sess, StatusCompleted, "")
}

package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
)

const recordOrderSQL = `INSERT INTO checkout_orders (
		order_id, payment_id, session_id, owner, payment_method, shipping_method,
		subtotal, shipping_fee, discount, total, promo_code, voucher_ids, status,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (order_id) DO UPDATE SET
		payment_id      = EXCLUDED.payment_id,
		session_id      = EXCLUDED.session_id,
		payment_method  = EXCLUDED.payment_method,
		shipping_method = EXCLUDED.shipping_method,
		subtotal        = EXCLUDED.subtotal,
		shipping_fee    = EXCLUDED.shipping_fee,
		discount        = EXCLUDED.discount,
		total           = EXCLUDED.total,
		promo_code      = EXCLUDED.promo_code,
		voucher_ids     = EXCLUDED.voucher_ids,
		status          = EXCLUDED.status,
		updated_at      = EXCLUDED.updated_at
	WHERE checkout_orders.owner = EXCLUDED.owner`

const updateStatusSQL = `UPDATE checkout_orders
	SET status = $2, updated_at = now()
	WHERE order_id = $1`

const getOrderSQL = `SELECT
		order_id, payment_id, session_id, owner, payment_method, shipping_method,
		subtotal, shipping_fee, discount, total, promo_code, voucher_ids, status,
		created_at, updated_at
	FROM checkout_orders
	WHERE order_id = $1`

var _ checkout.Ledger = (*OrderLedger)(nil)

// OrderLedger implements checkout.Ledger backed by PostgreSQL.
type OrderLedger struct {
	pool *pgxpool.Pool
}

// NewOrderLedger returns an OrderLedger that uses the given pool.
func NewOrderLedger(pool *pgxpool.Pool) *OrderLedger {
	return &OrderLedger{pool: pool}
}

// Record inserts the entry or replaces an existing entry of the same owner.
// The original created_at is kept on replace. An entry of another owner is
// left alone and reported as checkout.ErrOrderOwnerMismatch.
func (l *OrderLedger) Record(ctx context.Context, r checkout.OrderRecord) error {
	voucherIDs := r.VoucherIDs
	if voucherIDs == nil {
		voucherIDs = []string{}
	}
	tag, err := l.pool.Exec(ctx, recordOrderSQL,
		r.OrderID, r.PaymentID, r.SessionID, r.Owner,
		string(r.PaymentMethod), string(r.ShippingMethod),
		r.Subtotal, r.ShippingFee, r.Discount, r.Total,
		r.PromoCode, voucherIDs, string(r.Status),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "record order %q", r.OrderID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(checkout.ErrOrderOwnerMismatch, "record order %q", r.OrderID)
	}
	return nil
}

// UpdateStatus sets the status of an entry.
func (l *OrderLedger) UpdateStatus(ctx context.Context, orderID string, status checkout.OrderStatus) error {
	tag, err := l.pool.Exec(ctx, updateStatusSQL, orderID, string(status))
	if err != nil {
		return errors.Wrapf(err, "update order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

// Get returns the entry of orderID.
func (l *OrderLedger) Get(ctx context.Context, orderID string) (*checkout.OrderRecord, error) {
	var (
		r                                     checkout.OrderRecord
		paymentMethod, shippingMethod, status string
	)
	err := l.pool.QueryRow(ctx, getOrderSQL, orderID).Scan(
		&r.OrderID, &r.PaymentID, &r.SessionID, &r.Owner,
		&paymentMethod, &shippingMethod,
		&r.Subtotal, &r.ShippingFee, &r.Discount, &r.Total,
		&r.PromoCode, &r.VoucherIDs, &status,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", orderID)
	}
	r.PaymentMethod = checkout.PaymentMethod(paymentMethod)
	r.ShippingMethod = checkout.ShippingMethod(shippingMethod)
	r.Status = checkout.OrderStatus(status)
	return &r, nil
}

//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("checkout_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	require.NoError(t, RunMigrations(ctx, pool), "migrations are idempotent")
	return pool
}

func testRecord() checkout.OrderRecord {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return checkout.OrderRecord{
		OrderID:        "o1",
		PaymentID:      "pay1",
		SessionID:      "s1",
		Owner:          "owner-a",
		PaymentMethod:  checkout.PaymentVNPay,
		ShippingMethod: checkout.ShippingStandard,
		Subtotal:       decimal.NewFromInt(1_000_000),
		ShippingFee:    decimal.NewFromInt(25_000),
		Discount:       decimal.NewFromInt(80_000),
		Total:          decimal.NewFromInt(945_000),
		PromoCode:      "SALE20",
		VoucherIDs:     []string{"ship30", "order10"},
		Status:         checkout.OrderAwaitingPayment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestOrderLedger(t *testing.T) {
	pool := newTestPool(t)
	ledger := NewOrderLedger(pool)
	ctx := context.Background()

	rec := testRecord()
	require.NoError(t, ledger.Record(ctx, rec))

	got, err := ledger.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, rec.PaymentID, got.PaymentID)
	assert.Equal(t, rec.Owner, got.Owner)
	assert.Equal(t, checkout.PaymentVNPay, got.PaymentMethod)
	assert.Equal(t, checkout.ShippingStandard, got.ShippingMethod)
	assert.True(t, rec.Total.Equal(got.Total), "total %s", got.Total)
	assert.True(t, rec.Discount.Equal(got.Discount))
	assert.Equal(t, rec.VoucherIDs, got.VoucherIDs)
	assert.Equal(t, checkout.OrderAwaitingPayment, got.Status)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	t.Run("re-record keeps created_at", func(t *testing.T) {
		again := rec
		again.Status = checkout.OrderPaymentFailed
		again.VoucherIDs = nil
		again.CreatedAt = rec.CreatedAt.Add(time.Hour)
		again.UpdatedAt = rec.UpdatedAt.Add(time.Hour)
		require.NoError(t, ledger.Record(ctx, again))

		got, err := ledger.Get(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, checkout.OrderPaymentFailed, got.Status)
		assert.Empty(t, got.VoucherIDs)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("other owner cannot replace", func(t *testing.T) {
		hijack := rec
		hijack.Owner = "owner-b"
		hijack.Status = checkout.OrderPaid
		err := ledger.Record(ctx, hijack)
		require.ErrorIs(t, err, checkout.ErrOrderOwnerMismatch)

		got, err := ledger.Get(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, "owner-a", got.Owner)
		assert.NotEqual(t, checkout.OrderPaid, got.Status)
	})

	t.Run("update status", func(t *testing.T) {
		require.NoError(t, ledger.UpdateStatus(ctx, "o1", checkout.OrderPaid))

		got, err := ledger.Get(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, checkout.OrderPaid, got.Status)

		err = ledger.UpdateStatus(ctx, "missing", checkout.OrderPaid)
		require.ErrorIs(t, err, checkout.ErrOrderNotFound)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := ledger.Get(ctx, "missing")
		require.ErrorIs(t, err, checkout.ErrOrderNotFound)
	})
}

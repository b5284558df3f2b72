// Package discount turns marketplace discount records into checkout vouchers
// and aggregates the selected vouchers and promo code into an order discount.
package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates how a discount amount is interpreted.
type DiscountType string

const (
	// Percent reduces by Amount percent of the basis, up to MaximumDiscount.
	Percent DiscountType = "PERCENT"
	// Fixed reduces by Amount, up to MaximumDiscount.
	Fixed DiscountType = "FIXED"
)

// CouponType classifies what a discount reduces.
type CouponType string

const (
	// OnPurchase reduces the order subtotal.
	OnPurchase CouponType = "DISCOUNT_ON_PURCHASE"
	// OnShipping reduces the shipping fee.
	OnShipping CouponType = "DISCOUNT_ON_SHIPPING"
)

// Status is the marketplace-side activation state of a discount.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Scope is the selection slot a voucher occupies.
type Scope string

const (
	ScopeShipping Scope = "shipping"
	ScopeOrder    Scope = "order"
)

// Record is a discount as returned by the marketplace discount service.
// A zero MaximumDiscount means the discount is uncapped.
type Record struct {
	ID              string
	Title           string
	Code            string
	DiscountType    DiscountType
	CouponType      CouponType
	Amount          decimal.Decimal
	MaximumDiscount decimal.Decimal
	MinimumPurchase decimal.Decimal
	StartDate       *time.Time
	EndDate         *time.Time
	LimitUsage      int
	Status          Status
	Received        bool
}

// Scope reports the slot the record occupies. Anything that is not a
// shipping discount counts as an order discount.
func (r Record) Scope() Scope {
	if r.CouponType == OnShipping {
		return ScopeShipping
	}
	return ScopeOrder
}

// Active reports whether the marketplace marks the record usable.
func (r Record) Active() bool {
	return r.Status != StatusInactive
}

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// capAt clamps v to limit. A non-positive limit means no cap.
func capAt(v, limit decimal.Decimal) decimal.Decimal {
	if limit.IsPositive() {
		return decimal.Min(v, limit)
	}
	return v
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

// percentOf returns pct percent of v rounded to whole đồng, the smallest
// amount the marketplace and the order ledger carry.
func percentOf(v, pct decimal.Decimal) decimal.Decimal {
	return v.Mul(pct).Div(hundred).Round(0)
}

// orderValue is the value of a purchase discount against subtotal.
func orderValue(r Record, subtotal decimal.Decimal) decimal.Decimal {
	switch r.DiscountType {
	case Percent:
		return capAt(percentOf(subtotal, r.Amount), r.MaximumDiscount)
	case Fixed:
		return capAt(r.Amount, r.MaximumDiscount)
	default:
		return zero
	}
}

// shippingValue is the value of a shipping discount against shippingFee.
func shippingValue(r Record, shippingFee decimal.Decimal) decimal.Decimal {
	switch r.DiscountType {
	case Percent:
		return capAt(percentOf(shippingFee, r.Amount), r.MaximumDiscount)
	case Fixed:
		return capAt(r.Amount, r.MaximumDiscount)
	default:
		return zero
	}
}

package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

// Basis holds the amounts a voucher is evaluated against.
type Basis struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
}

// Voucher is the checkout view of a discount record.
type Voucher struct {
	Record

	Scope        Scope
	Description  string
	Condition    string
	Validity     string
	IsApplicable bool
	IsReceived   bool
	// Discount is what the voucher is worth against the current basis.
	Discount decimal.Decimal
}

// Transform builds the voucher view of r. Text fields stay empty when loc is
// nil.
func Transform(r Record, basis Basis, loc *Localizer, now time.Time) Voucher {
	v := Voucher{
		Record:       r,
		Scope:        r.Scope(),
		IsApplicable: basis.Subtotal.GreaterThanOrEqual(r.MinimumPurchase),
		IsReceived:   r.Received,
	}

	if v.Scope == ScopeShipping {
		v.Discount = floorAtZero(shippingValue(r, basis.ShippingFee))
	} else {
		v.Discount = floorAtZero(orderValue(r, basis.Subtotal))
	}

	if loc != nil {
		v.Description = loc.Describe(r)
		v.Condition = loc.Condition(r)
		v.Validity = loc.Validity(r, now)
	}
	return v
}

// TransformAll transforms records and splits them by scope, preserving order.
func TransformAll(records []Record, basis Basis, loc *Localizer, now time.Time) (shipping, order []Voucher) {
	for _, r := range records {
		v := Transform(r, basis, loc, now)
		if v.Scope == ScopeShipping {
			shipping = append(shipping, v)
		} else {
			order = append(order, v)
		}
	}
	return shipping, order
}

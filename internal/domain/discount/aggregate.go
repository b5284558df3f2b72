package discount

import "github.com/shopspring/decimal"

// Aggregate sums the selected applicable vouchers and the promo discount.
// Shipping vouchers contribute their computed Discount; order vouchers are
// re-evaluated against subtotal. The result is clamped to [0, subtotal].
func Aggregate(sel Selection, vouchers []Voucher, subtotal, promo decimal.Decimal) decimal.Decimal {
	byID := make(map[string]Voucher, len(vouchers))
	for _, v := range vouchers {
		byID[v.ID] = v
	}

	total := zero
	for _, id := range sel.IDs() {
		v, ok := byID[id]
		if !ok || !v.IsApplicable {
			continue
		}
		if v.CouponType == OnShipping {
			total = total.Add(v.Discount)
			continue
		}
		total = total.Add(orderValue(v.Record, subtotal))
	}
	total = total.Add(promo)

	return floorAtZero(decimal.Min(total, subtotal))
}

// Notifier pushes a value to its setter whenever it changes.
type Notifier struct {
	last decimal.Decimal
	set  func(decimal.Decimal)
}

// NewNotifier returns a Notifier that considers initial the current value.
func NewNotifier(initial decimal.Decimal, set func(decimal.Decimal)) *Notifier {
	return &Notifier{last: initial, set: set}
}

// Push calls the setter when v differs from the last seen value and reports
// whether it did.
func (n *Notifier) Push(v decimal.Decimal) bool {
	if v.Equal(n.last) {
		return false
	}
	n.last = v
	n.set(v)
	return true
}

// Totals is the payable breakdown of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// CalculateTotals returns subtotal + shippingFee - discount.
func CalculateTotals(subtotal, shippingFee, discount decimal.Decimal) Totals {
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: shippingFee,
		Discount:    discount,
		Total:       subtotal.Add(shippingFee).Sub(discount),
	}
}

// Package checkout orchestrates a checkout session from cart selection to
// payment.
package checkout

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/discount"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// Sentinel errors for checkout validation and session lookup.
var (
	ErrNoOwner                = errors.New("caller is not authenticated")
	ErrNoItems                = errors.New("no cart items selected")
	ErrAddressRequired        = errors.New("shipping address required")
	ErrPaymentMethodRequired  = errors.New("payment method required")
	ErrShippingMethodRequired = errors.New("shipping method required")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrUnknownShippingMethod  = errors.New("unknown shipping method")
	ErrUnknownAddress         = errors.New("unknown address")
	ErrUnknownVoucher         = errors.New("unknown voucher")
	ErrSessionNotFound        = errors.New("checkout session not found")
	ErrSessionClosed          = errors.New("checkout session is closed")
	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderOwnerMismatch     = errors.New("order is recorded for another owner")
	ErrNotAwaitingPayment     = errors.New("checkout session is not awaiting payment")
	ErrPaymentPending         = errors.New("checkout session is awaiting payment")
	ErrSessionBusy            = errors.New("checkout session is being processed")
	ErrDiscountsLocked        = errors.New("discounts cannot change once the order is placed")
	// ErrHoldLost is returned when a submission finishes after its hold on
	// the session expired and was taken over.
	ErrHoldLost = errors.New("checkout session hold expired")
)

// ValidationError describes invalid address fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.Fields, ", "))
}

// GatewayError is returned when a payment gateway could not produce a
// payment URL. The session stays submittable.
type GatewayError struct {
	Method PaymentMethod
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway: %v", e.Method, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PaymentMethod is how the buyer pays.
type PaymentMethod string

const (
	PaymentCOD   PaymentMethod = "COD"
	PaymentMoMo  PaymentMethod = "MOMO"
	PaymentVNPay PaymentMethod = "VNPAY"
)

// ParsePaymentMethod parses a case-insensitive payment method name.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentCOD, PaymentMoMo, PaymentVNPay:
		return m, nil
	case "":
		return "", ErrPaymentMethodRequired
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// Online reports whether the method redirects to a hosted payment page.
func (m PaymentMethod) Online() bool {
	return m == PaymentMoMo || m == PaymentVNPay
}

// ShippingMethod names a shipping fee tier.
type ShippingMethod string

const (
	ShippingEconomy  ShippingMethod = "economy"
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// DefaultShippingTiers are the fee tiers used when none are configured.
func DefaultShippingTiers() map[ShippingMethod]decimal.Decimal {
	return map[ShippingMethod]decimal.Decimal{
		ShippingEconomy:  decimal.NewFromInt(15_000),
		ShippingStandard: decimal.NewFromInt(25_000),
		ShippingExpress:  decimal.NewFromInt(40_000),
	}
}

// Status is the lifecycle state of a checkout session.
type Status string

const (
	StatusOpen            Status = "open"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusCompleted       Status = "completed"
	// StatusProcessing holds the session while a submission or payment
	// confirmation talks to the marketplace.
	StatusProcessing Status = "processing"
)

// Address is a shipping address of the buyer.
type Address struct {
	ID        string `json:"id"`
	FullName  string `json:"fullName" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"required,numeric,min=9,max=15"`
	Street    string `json:"street" validate:"required,max=255"`
	Ward      string `json:"ward" validate:"max=100"`
	District  string `json:"district" validate:"required,max=100"`
	City      string `json:"city" validate:"required,max=100"`
	IsDefault bool   `json:"isDefault"`
}

// CartItem is a line of the buyer's cart.
type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Session is the server-side state of one checkout.
type Session struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Locale string `json:"locale"`

	Items    []CartItem      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`

	Addresses      []Address       `json:"addresses"`
	AddressID      string          `json:"addressId"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	ShippingMethod ShippingMethod  `json:"shippingMethod"`
	ShippingFee    decimal.Decimal `json:"shippingFee"`

	Discounts []discount.Record  `json:"discounts"`
	Selection discount.Selection `json:"selection"`
	Promo     promo.State        `json:"promo"`
	// Discount is the aggregated discount of Selection and Promo.
	Discount decimal.Decimal `json:"discount"`

	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
	Status     Status `json:"status"`

	// Hold of a processing session: the token of the holder, when it was
	// taken, and the status the session returns to.
	HoldID         string    `json:"holdId,omitempty"`
	HeldAt         time.Time `json:"heldAt"`
	HeldFromStatus Status    `json:"heldFromStatus,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	c.Items = slices.Clone(s.Items)
	c.Addresses = slices.Clone(s.Addresses)
	c.Discounts = slices.Clone(s.Discounts)
	if s.Promo.Discount != nil {
		r := *s.Promo.Discount
		c.Promo.Discount = &r
	}
	return &c
}

// Address returns the selected address.
func (s *Session) Address() (Address, bool) {
	for _, a := range s.Addresses {
		if a.ID == s.AddressID {
			return a, true
		}
	}
	return Address{}, false
}

// ItemIDs returns the ids of the cart items being checked out.
func (s *Session) ItemIDs() []string {
	ids := make([]string, len(s.Items))
	for i, item := range s.Items {
		ids[i] = item.ID
	}
	return ids
}

// Basis returns the amounts vouchers are evaluated against.
func (s *Session) Basis() discount.Basis {
	return discount.Basis{Subtotal: s.Subtotal, ShippingFee: s.ShippingFee}
}

// Vouchers transforms the session's discount records.
func (s *Session) Vouchers(loc *discount.Localizer, now time.Time) []discount.Voucher {
	vouchers := make([]discount.Voucher, len(s.Discounts))
	for i, r := range s.Discounts {
		vouchers[i] = discount.Transform(r, s.Basis(), loc, now)
	}
	return vouchers
}

// Totals returns the payable breakdown.
func (s *Session) Totals() discount.Totals {
	return discount.CalculateTotals(s.Subtotal, s.ShippingFee, s.Discount)
}

// VoucherOption is a voucher offered at checkout.
type VoucherOption struct {
	discount.Voucher
	Selected bool
}

// VoucherList groups the offered vouchers by scope.
type VoucherList struct {
	Shipping []VoucherOption
	Order    []VoucherOption
}

// VoucherList returns the session's vouchers split by scope.
func (s *Session) VoucherList(loc *discount.Localizer, now time.Time) VoucherList {
	shipping, order := discount.TransformAll(s.Discounts, s.Basis(), loc, now)
	mark := func(vs []discount.Voucher) []VoucherOption {
		out := make([]VoucherOption, len(vs))
		for i, v := range vs {
			out[i] = VoucherOption{Voucher: v, Selected: s.Selection.Has(v.ID)}
		}
		return out
	}
	return VoucherList{Shipping: mark(shipping), Order: mark(order)}
}

// OrderStatus is the state of a ledger entry.
type OrderStatus string

const (
	OrderPlaced          OrderStatus = "placed"
	OrderAwaitingPayment OrderStatus = "awaiting_payment"
	OrderPaymentFailed   OrderStatus = "payment_failed"
	OrderPaid            OrderStatus = "paid"
)

// OrderRecord is the ledger entry of a submitted order.
type OrderRecord struct {
	OrderID        string
	PaymentID      string
	SessionID      string
	Owner          string
	PaymentMethod  PaymentMethod
	ShippingMethod ShippingMethod
	Subtotal       decimal.Decimal
	ShippingFee    decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	PromoCode      string
	VoucherIDs     []string
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderRef identifies an order on the marketplace.
type OrderRef struct {
	OrderID   string
	PaymentID string
}

// CreateOrderRequest is the marketplace order creation payload.
type CreateOrderRequest struct {
	Items         []CartItem
	ShippingFee   decimal.Decimal
	Address       Address
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	Discount      decimal.Decimal
	VoucherIDs    []string
	PromoCode     string
}

// UpdateOrderRequest is the marketplace order update payload.
type UpdateOrderRequest struct {
	ShippingFee   decimal.Decimal
	Address       Address
	PaymentMethod PaymentMethod
}

// Marketplace is the subset of the marketplace backend checkout uses.
type Marketplace interface {
	Addresses(ctx context.Context) ([]Address, error)
	UpdateAddress(ctx context.Context, a Address) (*Address, error)
	Cart(ctx context.Context) ([]CartItem, error)
	RemoveCartItems(ctx context.Context, ids []string) error
	UserDiscounts(ctx context.Context) ([]discount.Record, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderRef, error)
	UpdateOrder(ctx context.Context, orderID string, req UpdateOrderRequest) (*OrderRef, error)
}

// Gateway fetches hosted payment URLs.
type Gateway interface {
	PaymentURL(ctx context.Context, method PaymentMethod, paymentID string, amount decimal.Decimal) (string, error)
}

// SessionStore persists checkout sessions until they expire.
type SessionStore interface {
	// Create stores a new session. It expires at s.ExpiresAt.
	Create(ctx context.Context, s *Session) error
	// Get returns ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	// Update applies fn to a copy of the session and stores the result,
	// unless fn fails. Concurrent updates of one session are serialized.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
}

// Ledger records the orders submitted through checkout.
type Ledger interface {
	// Record inserts or replaces the entry for r.OrderID.
	Record(ctx context.Context, r OrderRecord) error
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus) error
	// Get returns ErrOrderNotFound for unknown orders.
	Get(ctx context.Context, orderID string) (*OrderRecord, error)
}

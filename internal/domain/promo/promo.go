// Package promo validates free-text promo codes at checkout.
package promo

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/discount"
)

var (
	// ErrEmptyCode is returned for empty or whitespace-only codes.
	ErrEmptyCode = errors.New("promo code is empty")
	// ErrUnknownCode is returned when the code was never issued.
	ErrUnknownCode = errors.New("promo code not recognized")
)

// State is the promo code applied to a checkout. The zero value means no
// promo code.
type State struct {
	Code           string
	DiscountAmount decimal.Decimal
	Discount       *discount.Record
}

// IsZero reports whether no promo code is applied.
func (s State) IsZero() bool {
	return s.Code == ""
}

// Result is the marketplace's answer to a code validation.
type Result struct {
	DiscountAmount decimal.Decimal
	Discount       *discount.Record
}

// Remote validates codes against the marketplace.
type Remote interface {
	ValidateDiscountCode(ctx context.Context, code string, subtotal decimal.Decimal) (*Result, error)
}

// Validator validates a promo code for a subtotal.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (State, error)
}

// Normalize trims and upper-cases a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

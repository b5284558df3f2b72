package promo

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var _ Validator = (*RemoteValidator)(nil)

// RemoteValidator implements Validator by asking the marketplace, after
// rejecting what can be rejected locally.
type RemoteValidator struct {
	remote Remote
	filter *Prefilter
}

// Option configures a RemoteValidator.
type Option func(*RemoteValidator)

// WithPrefilter rejects codes the prefilter proves were never issued.
func WithPrefilter(p *Prefilter) Option {
	return func(v *RemoteValidator) {
		v.filter = p
	}
}

// NewRemoteValidator creates a RemoteValidator backed by remote.
func NewRemoteValidator(remote Remote, opts ...Option) *RemoteValidator {
	v := &RemoteValidator{remote: remote}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate normalizes code, rejects empty and never-issued codes without a
// network call, and otherwise returns the marketplace's discount. No retry
// is attempted.
func (v *RemoteValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (State, error) {
	code = Normalize(code)
	if code == "" {
		return State{}, ErrEmptyCode
	}
	if v.filter != nil && !v.filter.MayContain(code) {
		return State{}, ErrUnknownCode
	}

	res, err := v.remote.ValidateDiscountCode(ctx, code, subtotal)
	if err != nil {
		return State{}, errors.Wrap(err, "validate promo code")
	}

	amount := res.DiscountAmount
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return State{
		Code:           code,
		DiscountAmount: amount,
		Discount:       res.Discount,
	}, nil
}

package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-checkout/internal/domain/discount"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

// DefaultSessionTTL is how long a checkout session lives without a
// configured TTL.
const DefaultSessionTTL = 30 * time.Minute

// DefaultHoldTimeout bounds how long a submission or payment confirmation
// may hold a session before another caller can take it over.
const DefaultHoldTimeout = 2 * time.Minute

// Params holds the collaborators of a Service.
type Params struct {
	Marketplace Marketplace
	Gateway     Gateway
	Promos      promo.Validator
	Sessions    SessionStore
	Ledger      Ledger
	// Locales renders voucher text. Vietnamese-first locales are used when
	// nil.
	Locales *discount.Locales
}

// Option configures a Service.
type Option func(*Service)

// WithSessionTTL sets the lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithHoldTimeout sets how long a processing session stays held.
func WithHoldTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdTimeout = d
		}
	}
}

// WithShippingTiers replaces the shipping fee tiers.
func WithShippingTiers(tiers map[ShippingMethod]decimal.Decimal) Option {
	return func(s *Service) {
		if len(tiers) > 0 {
			s.tiers = tiers
		}
	}
}

// WithMetrics sets the instruments the Service reports to.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs checkout sessions.
type Service struct {
	market   Marketplace
	gateway  Gateway
	promos   promo.Validator
	sessions SessionStore
	ledger   Ledger
	locales  *discount.Locales
	validate *validator.Validate

	tiers       map[ShippingMethod]decimal.Decimal
	ttl         time.Duration
	holdTimeout time.Duration
	now         func() time.Time
	metrics     *Metrics
}

// NewService creates a checkout Service.
func NewService(p Params, opts ...Option) *Service {
	s := &Service{
		market:      p.Marketplace,
		gateway:     p.Gateway,
		promos:      p.Promos,
		sessions:    p.Sessions,
		ledger:      p.Ledger,
		locales:     p.Locales,
		validate:    newValidator(),
		tiers:       DefaultShippingTiers(),
		ttl:         DefaultSessionTTL,
		holdTimeout: DefaultHoldTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locales == nil {
		s.locales = discount.NewLocales("vi")
	}
	if s.metrics == nil {
		s.metrics = noopMetrics()
	}
	return s
}

// ShippingTiers returns the configured fee per shipping method.
func (s *Service) ShippingTiers() map[ShippingMethod]decimal.Decimal {
	tiers := make(map[ShippingMethod]decimal.Decimal, len(s.tiers))
	for k, v := range s.tiers {
		tiers[k] = v
	}
	return tiers
}

// Localizer returns the localizer for an Accept-Language value.
func (s *Service) Localizer(accept string) *discount.Localizer {
	return s.locales.For(accept)
}

// StartRequest holds the input for starting a checkout.
type StartRequest struct {
	// CartItemIDs are the cart items being checked out.
	CartItemIDs []string
	// OrderID continues an order created by an earlier checkout.
	OrderID string
	// Locale is the buyer's Accept-Language value.
	Locale string
}

// Start loads the buyer's addresses and cart and opens a session over the
// selected cart items.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	owner := OwnerFrom(ctx)
	if owner == "" {
		return nil, ErrNoOwner
	}
	if len(req.CartItemIDs) == 0 {
		return nil, ErrNoItems
	}

	var (
		addresses []Address
		cart      []CartItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if addresses, err = s.market.Addresses(gctx); err != nil {
			return errors.Wrap(err, "load addresses")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cart, err = s.market.Cart(gctx); err != nil {
			return errors.Wrap(err, "load cart")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := selectItems(cart, req.CartItemIDs)
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		Locale:    req.Locale,
		Items:     items,
		Subtotal:  subtotal,
		Addresses: addresses,
		AddressID: defaultAddressID(addresses),
		OrderID:   req.OrderID,
		Status:    StatusOpen,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	return sess, nil
}

// Get returns the caller's session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sameOwner(sess.Owner, OwnerFrom(ctx)) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// load returns the caller's session when it still accepts changes.
func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.acceptsChanges(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// acceptsChanges reports why the buyer may not change sess, if anything.
// A session awaiting payment is frozen until the payment result arrives.
func (s *Service) acceptsChanges(sess *Session) error {
	switch {
	case sess.Status == StatusCompleted:
		return ErrSessionClosed
	case sess.Status == StatusAwaitingPayment:
		return ErrPaymentPending
	case s.held(sess):
		return ErrSessionBusy
	}
	return nil
}

// update applies fn to the caller's session inside the store's
// read-modify-write.
func (s *Service) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	owner := OwnerFrom(ctx)
	return s.sessions.Update(ctx, id, func(sess *Session) error {
		if !sameOwner(sess.Owner, owner) {
			return ErrSessionNotFound
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.now()
		return nil
	})
}

// mutate applies a buyer's change to the caller's session and refreshes the
// aggregated discount.
func (s *Service) mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	return s.update(ctx, id, func(sess *Session) error {
		s.dropExpiredHold(sess)
		if err := s.acceptsChanges(sess); err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		s.recompute(sess)
		return nil
	})
}

// mutateDiscounts is mutate for the voucher selection and promo code. Both
// went into the order the marketplace holds, so they are fixed once the
// session carries an order id.
func (s *Service) mutateDiscounts(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		if sess.OrderID != "" {
			return ErrDiscountsLocked
		}
		return fn(sess)
	})
}

// recompute refreshes sess.Discount from the selection and promo code. The
// Notifier is seeded with the stored value and only writes a different
// aggregate back, so recompute is a no-op for changes that leave the
// discount as it was. Once an order exists the discount stays what the
// order was created with.
func (s *Service) recompute(sess *Session) {
	if sess.OrderID != "" {
		return
	}
	n := discount.NewNotifier(sess.Discount, func(v decimal.Decimal) {
		sess.Discount = v
	})
	n.Push(discount.Aggregate(
		sess.Selection,
		sess.Vouchers(nil, s.now()),
		sess.Subtotal,
		sess.Promo.DiscountAmount,
	))
}

// SelectAddress selects one of the buyer's addresses.
func (s *Service) SelectAddress(ctx context.Context, id, addressID string) (*Session, error) {
	return s.mutate(ctx, id, func(sess *Session) error {
		for _, a := range sess.Addresses {
			if a.ID == addressID {
				sess.AddressID = addressID
				return nil
			}
		}
		return ErrUnknownAddress
	})
}

// EditAddress validates a changed address, saves it on the marketplace, and
// selects it.
func (s *Service) EditAddress(ctx context.Context, id string, a Address) (*Session, error) {
	if err := validateAddress(s.validate, a); err != nil {
		return nil, err
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasAddress(sess.Addresses, a.ID) {
		return nil, ErrUnknownAddress
	}

	saved, err := s.market.UpdateAddress(ctx, a)
	if err != nil {
		return nil, errors.Wrap(err, "update address")
	}

	return s.mutate(ctx, id, func(sess *Session) error {
		replaced := false
		for i := range sess.Addresses {
			if sess.Addresses[i].ID == saved.ID {
				sess.Addresses[i] = *saved
				replaced = true
			}
		}
		if !replaced {
			sess.Addresses = append(sess.Addresses, *saved)
		}
		sess.AddressID = saved.ID
		return nil
	})
}

// SelectPaymentMethod sets how the buyer pays.
func (s *Service) SelectPaymentMethod(ctx context.Context, id string, method PaymentMethod) (*Session, error) {
	m, err := ParsePaymentMethod(string(method))
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.PaymentMethod = m
		return nil
	})
}

// SelectShippingMethod sets the shipping tier and its fee.
func (s *Service) SelectShippingMethod(ctx context.Context, id string, method ShippingMethod) (*Session, error) {
	if method == "" {
		return nil, ErrShippingMethodRequired
	}
	fee, ok := s.tiers[method]
	if !ok {
		return nil, ErrUnknownShippingMethod
	}
	return s.mutate(ctx, id, func(sess *Session) error {
		sess.ShippingMethod = method
		sess.ShippingFee = fee
		return nil
	})
}

// Vouchers refreshes the buyer's discounts from the marketplace and returns
// them as vouchers. Inactive discounts are not offered; selections of
// vouchers no longer offered are dropped.
func (s *Service) Vouchers(ctx context.Context, id string) (VoucherList, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return VoucherList{}, err
	}
	if sess.Status == StatusCompleted {
		return VoucherList{}, ErrSessionClosed
	}
	if sess.Status != StatusOpen || sess.OrderID != "" {
		// Discounts are fixed; list what the session already holds.
		return sess.VoucherList(s.locales.For(sess.Locale), s.now()), nil
	}

	records, err := s.market.UserDiscounts(ctx)
	if err != nil {
		return VoucherList{}, errors.Wrap(err, "load discounts")
	}
	active := make([]discount.Record, 0, len(records))
	for _, r := range records {
		if r.Active() {
			active = append(active, r)
		}
	}

	sess, err = s.mutateDiscounts(ctx, id, func(sess *Session) error {
		sess.Discounts = active
		sess.Selection.Retain(func(id string) bool {
			for _, r := range active {
				if r.ID == id {
					return true
				}
			}
			return false
		})
		return nil
	})
	if err != nil {
		return VoucherList{}, err
	}
	return sess.VoucherList(s.locales.For(sess.Locale), s.now()), nil
}

// ToggleVoucher selects a voucher, replacing the selection of its scope, or
// unselects it when already selected. Inapplicable vouchers may be selected
// but do not count towards the discount.
func (s *Service) ToggleVoucher(ctx context.Context, id, voucherID string) (*Session, error) {
	return s.mutateDiscounts(ctx, id, func(sess *Session) error {
		for _, v := range sess.Vouchers(nil, s.now()) {
			if v.ID == voucherID {
				sess.Selection.Toggle(v)
				return nil
			}
		}
		return ErrUnknownVoucher
	})
}

// ApplyPromoCode validates code and stores it alongside the voucher
// selection. A rejected code clears any promo code already applied.
func (s *Service) ApplyPromoCode(ctx context.Context, id, code string) (*Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.OrderID != "" {
		return nil, ErrDiscountsLocked
	}

	state, verr := s.promos.Validate(ctx, code, sess.Subtotal)
	switch {
	case verr == nil:
		s.metrics.promoValidated(ctx, "accepted")
	case errors.Is(verr, promo.ErrEmptyCode), errors.Is(verr, promo.ErrUnknownCode):
		s.metrics.promoValidated(ctx, "rejected_locally")
	default:
		s.metrics.promoValidated(ctx, "rejected")
	}

	sess, err = s.mutateDiscounts(ctx, id, func(sess *Session) error {
		sess.Promo = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return nil, verr
	}
	return sess, nil
}

// RemovePromoCode drops the applied promo code.
func (s *Service) RemovePromoCode(ctx context.Context, id string) (*Session, error) {
	return s.mutateDiscounts(ctx, id, func(sess *Session) error {
		sess.Promo = promo.State{}
		return nil
	})
}

// ClearDiscounts unselects every voucher and drops the promo code.
func (s *Service) ClearDiscounts(ctx context.Context, id string) (*Session, error) {
	return s.mutateDiscounts(ctx, id, func(sess *Session) error {
		sess.Selection.Clear()
		sess.Promo = promo.State{}
		return nil
	})
}

// Totals returns the payable breakdown of the session.
func (s *Service) Totals(ctx context.Context, id string) (discount.Totals, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return discount.Totals{}, err
	}
	return sess.Totals(), nil
}

// Order returns the caller's ledger entry for orderID.
func (s *Service) Order(ctx context.Context, orderID string) (*OrderRecord, error) {
	r, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !sameOwner(r.Owner, OwnerFrom(ctx)) {
		return nil, ErrOrderNotFound
	}
	return r, nil
}

func selectItems(cart []CartItem, ids []string) []CartItem {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	items := make([]CartItem, 0, len(ids))
	for _, item := range cart {
		if _, ok := want[item.ID]; ok && item.Quantity > 0 {
			items = append(items, item)
		}
	}
	return items
}

func defaultAddressID(addresses []Address) string {
	for _, a := range addresses {
		if a.IsDefault {
			return a.ID
		}
	}
	if len(addresses) > 0 {
		return addresses[0].ID
	}
	return ""
}

func hasAddress(addresses []Address, id string) bool {
	for _, a := range addresses {
		if a.ID == id {
			return true
		}
	}
	return false
}

package discount

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the English text.
const (
	msgPercentCapped         = "Reduce %s%% up to %d₫"
	msgPercent               = "Reduce %s%%"
	msgFixed                 = "Reduce %d₫"
	msgShippingPercentCapped = "Reduce %s%% shipping fee up to %d₫"
	msgShippingPercent       = "Reduce %s%% shipping fee"
	msgShippingFixed         = "Reduce %d₫ shipping fee"
	msgMinimumPurchase       = "Minimum order %d₫"
	msgDaysLeft              = "%d days left"
	msgExpiresToday          = "Expires today"
	msgExpired               = "Expired"
)

var supportedTags = []language.Tag{language.English, language.Vietnamese}

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))

	vi := map[string]string{
		msgPercentCapped:         "Giảm %s%% tối đa %d₫",
		msgPercent:               "Giảm %s%%",
		msgFixed:                 "Giảm %d₫",
		msgShippingPercentCapped: "Giảm %s%% phí vận chuyển tối đa %d₫",
		msgShippingPercent:       "Giảm %s%% phí vận chuyển",
		msgShippingFixed:         "Giảm %d₫ phí vận chuyển",
		msgMinimumPurchase:       "Đơn tối thiểu %d₫",
		msgDaysLeft:              "Còn %d ngày",
		msgExpiresToday:          "Hết hạn hôm nay",
		msgExpired:               "Đã hết hạn",
	}
	for key, msg := range vi {
		_ = b.SetString(language.Vietnamese, key, msg)
	}
	_ = b.Set(language.English, msgDaysLeft,
		plural.Selectf(1, "%d",
			"one", "%d day left",
			"other", "%d days left",
		))

	return b
}

// Locales picks a Localizer for a client's language preferences.
type Locales struct {
	matcher    language.Matcher
	tags       []language.Tag
	localizers []*Localizer
}

// NewLocales returns Locales that fall back to the given language (a BCP 47
// tag such as "vi") when a client preference matches nothing supported.
// Unsupported fallbacks resolve to English.
func NewLocales(fallback string) *Locales {
	first := language.English
	if tag, err := language.Parse(fallback); err == nil {
		base, _ := tag.Base()
		for _, s := range supportedTags {
			if sb, _ := s.Base(); sb == base {
				first = s
			}
		}
	}

	tags := []language.Tag{first}
	for _, s := range supportedTags {
		if s != first {
			tags = append(tags, s)
		}
	}

	cat := newCatalog()
	l := &Locales{
		matcher:    language.NewMatcher(tags),
		tags:       tags,
		localizers: make([]*Localizer, len(tags)),
	}
	for i, tag := range tags {
		l.localizers[i] = &Localizer{
			tag:     tag,
			printer: message.NewPrinter(tag, message.Catalog(cat)),
		}
	}
	return l
}

// For returns the Localizer best matching an Accept-Language style value.
func (l *Locales) For(accept string) *Localizer {
	prefs, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(prefs) == 0 {
		return l.localizers[0]
	}
	_, idx, conf := l.matcher.Match(prefs...)
	if conf == language.No {
		return l.localizers[0]
	}
	return l.localizers[idx]
}

// Localizer renders voucher texts in one language.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// Tag returns the BCP 47 tag of the localizer's language.
func (l *Localizer) Tag() string {
	return l.tag.String()
}

// Describe renders the human-readable reduction of r. Unrecognized
// discount/coupon type combinations yield an empty string.
func (l *Localizer) Describe(r Record) string {
	pct := r.Amount.String()
	capped := r.MaximumDiscount.IsPositive()
	limit := whole(r.MaximumDiscount)

	switch r.CouponType {
	case OnPurchase:
		switch {
		case r.DiscountType == Percent && capped:
			return l.printer.Sprintf(msgPercentCapped, pct, limit)
		case r.DiscountType == Percent:
			return l.printer.Sprintf(msgPercent, pct)
		case r.DiscountType == Fixed:
			return l.printer.Sprintf(msgFixed, whole(r.Amount))
		}
	case OnShipping:
		switch {
		case r.DiscountType == Percent && capped:
			return l.printer.Sprintf(msgShippingPercentCapped, pct, limit)
		case r.DiscountType == Percent:
			return l.printer.Sprintf(msgShippingPercent, pct)
		case r.DiscountType == Fixed:
			return l.printer.Sprintf(msgShippingFixed, whole(r.Amount))
		}
	}
	return ""
}

// Condition renders the minimum purchase requirement, or "" when there is none.
func (l *Localizer) Condition(r Record) string {
	if !r.MinimumPurchase.IsPositive() {
		return ""
	}
	return l.printer.Sprintf(msgMinimumPurchase, whole(r.MinimumPurchase))
}

// Validity renders how long r remains usable at now, or "" when it never
// expires.
func (l *Localizer) Validity(r Record, now time.Time) string {
	if r.EndDate == nil {
		return ""
	}
	remaining := r.EndDate.Sub(now)
	switch {
	case remaining < 0:
		return l.printer.Sprintf(msgExpired)
	case remaining < 24*time.Hour:
		return l.printer.Sprintf(msgExpiresToday)
	default:
		return l.printer.Sprintf(msgDaysLeft, int(remaining/(24*time.Hour)))
	}
}

// whole rounds a money amount to whole currency units for display.
func whole(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

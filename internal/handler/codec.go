package handler

import (
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/discount"
)

// decodeBody decodes a JSON object body field by field. Unknown fields are
// skipped.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("read body", err)
	}
	if len(data) == 0 {
		return badRequest("request body required", nil)
	}
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		return field(d, key)
	}); err != nil {
		return badRequest("malformed JSON body", err)
	}
	return nil
}

type startRequest struct {
	CartItemIDs []string
	OrderID     string
}

func decodeStartRequest(r *http.Request) (startRequest, error) {
	var req startRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "cartItemIds":
			return d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				req.CartItemIDs = append(req.CartItemIDs, id)
				return nil
			})
		case "orderId":
			return decodeOptStr(d, &req.OrderID)
		default:
			return d.Skip()
		}
	})
	return req, err
}

// addressRequest selects a saved address by id or edits one.
type addressRequest struct {
	AddressID string
	Address   *checkout.Address
}

func decodeAddressRequest(r *http.Request) (addressRequest, error) {
	var req addressRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "addressId":
			return decodeOptStr(d, &req.AddressID)
		case "address":
			a, err := decodeAddress(d)
			if err != nil {
				return err
			}
			req.Address = &a
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return req, err
	}
	if req.Address == nil && req.AddressID == "" {
		return req, badRequest("addressId or address required", nil)
	}
	return req, nil
}

func decodeAddress(d *jx.Decoder) (checkout.Address, error) {
	var a checkout.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return decodeOptStr(d, &a.ID)
		case "fullName":
			return decodeOptStr(d, &a.FullName)
		case "phone":
			return decodeOptStr(d, &a.Phone)
		case "street":
			return decodeOptStr(d, &a.Street)
		case "ward":
			return decodeOptStr(d, &a.Ward)
		case "district":
			return decodeOptStr(d, &a.District)
		case "city":
			return decodeOptStr(d, &a.City)
		case "isDefault":
			v, err := d.Bool()
			a.IsDefault = v
			return err
		default:
			return d.Skip()
		}
	})
	return a, err
}

// decodeStringField decodes a body holding a single string field.
func decodeStringField(r *http.Request, name string) (string, error) {
	var v string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != name {
			return d.Skip()
		}
		return decodeOptStr(d, &v)
	})
	return v, err
}

func decodePaymentResult(r *http.Request) (checkout.PaymentResult, error) {
	var (
		res checkout.PaymentResult
		set bool
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "success" {
			return d.Skip()
		}
		v, err := d.Bool()
		res.Success, set = v, true
		return err
	})
	if err == nil && !set {
		err = badRequest("success required", nil)
	}
	return res, err
}

func decodeOptStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	v, err := d.Str()
	if err != nil {
		return errors.Wrap(err, "expected string")
	}
	*dst = v
	return nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeStrings(e *jx.Encoder, vs []string) {
	e.ArrStart()
	for _, v := range vs {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeAddress(e *jx.Encoder, a checkout.Address) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID)
	e.FieldStart("fullName")
	e.Str(a.FullName)
	e.FieldStart("phone")
	e.Str(a.Phone)
	e.FieldStart("street")
	e.Str(a.Street)
	e.FieldStart("ward")
	e.Str(a.Ward)
	e.FieldStart("district")
	e.Str(a.District)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("isDefault")
	e.Bool(a.IsDefault)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t discount.Totals) {
	e.ObjStart()
	e.FieldStart("subtotal")
	encodeDecimal(e, t.Subtotal)
	e.FieldStart("shippingFee")
	encodeDecimal(e, t.ShippingFee)
	e.FieldStart("discount")
	encodeDecimal(e, t.Discount)
	e.FieldStart("total")
	encodeDecimal(e, t.Total)
	e.ObjEnd()
}

func encodeSession(e *jx.Encoder, s *checkout.Session) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("locale")
	e.Str(s.Locale)

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range s.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(item.ID)
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("name")
		e.Str(item.Name)
		e.FieldStart("price")
		encodeDecimal(e, item.Price)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("lineTotal")
		encodeDecimal(e, item.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("addresses")
	e.ArrStart()
	for _, a := range s.Addresses {
		encodeAddress(e, a)
	}
	e.ArrEnd()
	e.FieldStart("addressId")
	e.Str(s.AddressID)
	e.FieldStart("paymentMethod")
	e.Str(string(s.PaymentMethod))
	e.FieldStart("shippingMethod")
	e.Str(string(s.ShippingMethod))

	e.FieldStart("selectedVouchers")
	e.ObjStart()
	e.FieldStart("shipping")
	e.Str(s.Selection.Shipping)
	e.FieldStart("order")
	e.Str(s.Selection.Order)
	e.ObjEnd()

	e.FieldStart("promo")
	if s.Promo.IsZero() {
		e.Null()
	} else {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(s.Promo.Code)
		e.FieldStart("discountAmount")
		encodeDecimal(e, s.Promo.DiscountAmount)
		e.ObjEnd()
	}

	e.FieldStart("totals")
	encodeTotals(e, s.Totals())

	if s.OrderID != "" {
		e.FieldStart("orderId")
		e.Str(s.OrderID)
	}
	if s.PaymentURL != "" {
		e.FieldStart("paymentUrl")
		e.Str(s.PaymentURL)
	}
	e.FieldStart("version")
	e.Int64(s.Version)
	e.FieldStart("expiresAt")
	encodeTime(e, s.ExpiresAt)
	e.ObjEnd()
}

func encodeVoucher(e *jx.Encoder, v checkout.VoucherOption) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(v.ID)
	e.FieldStart("title")
	e.Str(v.Title)
	e.FieldStart("code")
	e.Str(v.Code)
	e.FieldStart("scope")
	e.Str(string(v.Scope))
	e.FieldStart("discountType")
	e.Str(string(v.DiscountType))
	e.FieldStart("amount")
	encodeDecimal(e, v.Amount)
	e.FieldStart("maximumDiscount")
	encodeDecimal(e, v.MaximumDiscount)
	e.FieldStart("minimumPurchase")
	encodeDecimal(e, v.MinimumPurchase)
	if v.EndDate != nil {
		e.FieldStart("endDate")
		encodeTime(e, *v.EndDate)
	}
	e.FieldStart("description")
	e.Str(v.Description)
	e.FieldStart("condition")
	e.Str(v.Condition)
	e.FieldStart("validity")
	e.Str(v.Validity)
	e.FieldStart("isApplicable")
	e.Bool(v.IsApplicable)
	e.FieldStart("isReceived")
	e.Bool(v.IsReceived)
	e.FieldStart("discount")
	encodeDecimal(e, v.Discount)
	e.FieldStart("selected")
	e.Bool(v.Selected)
	e.ObjEnd()
}

func encodeVoucherList(e *jx.Encoder, list checkout.VoucherList) {
	group := func(name string, vs []checkout.VoucherOption) {
		e.FieldStart(name)
		e.ArrStart()
		for _, v := range vs {
			encodeVoucher(e, v)
		}
		e.ArrEnd()
	}
	e.ObjStart()
	group("shipping", list.Shipping)
	group("order", list.Order)
	e.ObjEnd()
}

func encodeSubmitResult(e *jx.Encoder, res *checkout.SubmitResult) {
	e.ObjStart()
	e.FieldStart("session")
	encodeSession(e, res.Session)
	e.FieldStart("redirectUrl")
	if res.RedirectURL == "" {
		e.Null()
	} else {
		e.Str(res.RedirectURL)
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *checkout.OrderRecord) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(o.OrderID)
	e.FieldStart("paymentId")
	e.Str(o.PaymentID)
	e.FieldStart("sessionId")
	e.Str(o.SessionID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("shippingMethod")
	e.Str(string(o.ShippingMethod))
	e.FieldStart("totals")
	encodeTotals(e, discount.Totals{
		Subtotal:    o.Subtotal,
		ShippingFee: o.ShippingFee,
		Discount:    o.Discount,
		Total:       o.Total,
	})
	e.FieldStart("promoCode")
	e.Str(o.PromoCode)
	e.FieldStart("voucherIds")
	encodeStrings(e, o.VoucherIDs)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

// encodeShippingTiers lists the tiers cheapest first.
func encodeShippingTiers(e *jx.Encoder, tiers map[checkout.ShippingMethod]decimal.Decimal) {
	methods := make([]checkout.ShippingMethod, 0, len(tiers))
	for m := range tiers {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool {
		a, b := tiers[methods[i]], tiers[methods[j]]
		if a.Equal(b) {
			return methods[i] < methods[j]
		}
		return a.LessThan(b)
	})

	e.ArrStart()
	for _, m := range methods {
		e.ObjStart()
		e.FieldStart("method")
		e.Str(string(m))
		e.FieldStart("fee")
		encodeDecimal(e, tiers[m])
		e.ObjEnd()
	}
	e.ArrEnd()
}

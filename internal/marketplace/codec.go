package marketplace

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/discount"
)

// The marketplace is loose about scalar types: ids come as numbers or
// strings, amounts as numbers or numeric strings, dates as RFC 3339 or plain
// dates. Decoders accept all of them.

func decodeString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := decodeString(d)
	if err != nil {
		return decimal.Zero, err
	}
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse amount %q", s)
	}
	return v, nil
}

func decodeInt(d *jx.Decoder) (int, error) {
	s, err := decodeString(d)
	if err != nil || s == "" {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse integer %q", s)
	}
	return v, nil
}

func decodeBool(d *jx.Decoder) (bool, error) {
	if d.Next() == jx.Null {
		return false, d.Null()
	}
	return d.Bool()
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	s, err := decodeString(d)
	if err != nil || s == "" {
		return nil, err
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("parse time %q", s)
}

func decodeAddress(d *jx.Decoder) (checkout.Address, error) {
	var a checkout.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id", "_id":
			a.ID, err = decodeString(d)
		case "fullName", "name":
			a.FullName, err = decodeString(d)
		case "phone", "phoneNumber":
			a.Phone, err = decodeString(d)
		case "street", "address":
			a.Street, err = decodeString(d)
		case "ward":
			a.Ward, err = decodeString(d)
		case "district":
			a.District, err = decodeString(d)
		case "city", "province":
			a.City, err = decodeString(d)
		case "isDefault", "default":
			a.IsDefault, err = decodeBool(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return a, err
}

func decodeAddresses(d *jx.Decoder) ([]checkout.Address, error) {
	var out []checkout.Address
	err := d.Arr(func(d *jx.Decoder) error {
		a, err := decodeAddress(d)
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func decodeCartItem(d *jx.Decoder) (checkout.CartItem, error) {
	var item checkout.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id", "_id":
			item.ID, err = decodeString(d)
		case "productId":
			item.ProductID, err = decodeString(d)
		case "name", "productName":
			item.Name, err = decodeString(d)
		case "price":
			item.Price, err = decodeDecimal(d)
		case "quantity":
			item.Quantity, err = decodeInt(d)
		case "product":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "id", "_id":
					item.ProductID, err = decodeString(d)
				case "name":
					item.Name, err = decodeString(d)
				case "price":
					item.Price, err = decodeDecimal(d)
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

// decodeCart accepts {"items": [...]} or a bare array.
func decodeCart(d *jx.Decoder) ([]checkout.CartItem, error) {
	var out []checkout.CartItem
	items := func(d *jx.Decoder) error {
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeCartItem(d)
			if err != nil {
				return err
			}
			out = append(out, item)
			return nil
		})
	}
	if d.Next() == jx.Array {
		return out, items(d)
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "items" || key == "cartItems" {
			return items(d)
		}
		return d.Skip()
	})
	return out, err
}

func decodeRecord(d *jx.Decoder) (discount.Record, error) {
	r := discount.Record{Status: discount.StatusActive, Received: true}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case "id", "_id":
			r.ID, err = decodeString(d)
		case "title":
			r.Title, err = decodeString(d)
		case "code":
			r.Code, err = decodeString(d)
		case "discountType":
			s, err = decodeString(d)
			r.DiscountType = discount.DiscountType(s)
		case "couponType":
			s, err = decodeString(d)
			r.CouponType = discount.CouponType(s)
		case "amount":
			r.Amount, err = decodeDecimal(d)
		case "maximumDiscount":
			r.MaximumDiscount, err = decodeDecimal(d)
		case "minimumPurchase", "minOrderValue":
			r.MinimumPurchase, err = decodeDecimal(d)
		case "startDate":
			r.StartDate, err = decodeTime(d)
		case "endDate":
			r.EndDate, err = decodeTime(d)
		case "limitUsage":
			r.LimitUsage, err = decodeInt(d)
		case "status":
			s, err = decodeString(d)
			if s != "" {
				r.Status = discount.Status(s)
			}
		case "isReceived", "received":
			r.Received, err = decodeBool(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return r, err
}

func decodeRecords(d *jx.Decoder) ([]discount.Record, error) {
	var out []discount.Record
	err := d.Arr(func(d *jx.Decoder) error {
		r, err := decodeRecord(d)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func decodeOrderRef(d *jx.Decoder) (checkout.OrderRef, error) {
	var ref checkout.OrderRef
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId", "id", "_id":
			ref.OrderID, err = decodeString(d)
		case "paymentId":
			ref.PaymentID, err = decodeString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return ref, err
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
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

func encodeStrings(e *jx.Encoder, vs []string) {
	e.ArrStart()
	for _, v := range vs {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeCreateOrder(req checkout.CreateOrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("cartItems")
	e.ArrStart()
	for _, item := range req.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(item.ID)
		e.FieldStart("productId")
		e.Str(item.ProductID)
		e.FieldStart("price")
		encodeDecimal(&e, item.Price)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("shippingFee")
	encodeDecimal(&e, req.ShippingFee)
	e.FieldStart("shippingAddress")
	encodeAddress(&e, req.Address)
	e.FieldStart("totalAmount")
	encodeDecimal(&e, req.Total)
	e.FieldStart("paymentMethod")
	e.Str(string(req.PaymentMethod))
	e.FieldStart("discount")
	encodeDecimal(&e, req.Discount)
	if len(req.VoucherIDs) > 0 {
		e.FieldStart("discountIds")
		encodeStrings(&e, req.VoucherIDs)
	}
	if req.PromoCode != "" {
		e.FieldStart("promoCode")
		e.Str(req.PromoCode)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeUpdateOrder(orderID string, req checkout.UpdateOrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(orderID)
	e.FieldStart("shippingFee")
	encodeDecimal(&e, req.ShippingFee)
	e.FieldStart("shippingAddress")
	encodeAddress(&e, req.Address)
	e.FieldStart("paymentMethod")
	e.Str(string(req.PaymentMethod))
	e.ObjEnd()
	return e.Bytes()
}

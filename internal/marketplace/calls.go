package marketplace

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/discount"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

var (
	_ checkout.Marketplace = (*Client)(nil)
	_ checkout.Gateway     = (*Client)(nil)
	_ promo.Remote         = (*Client)(nil)
)

// Addresses lists the user's shipping addresses.
func (c *Client) Addresses(ctx context.Context) ([]checkout.Address, error) {
	var out []checkout.Address
	err := c.do(ctx, http.MethodGet, "/addresses", nil, func(d *jx.Decoder) error {
		var err error
		out, err = decodeAddresses(d)
		return err
	})
	return out, err
}

// UpdateAddress saves an edited address.
func (c *Client) UpdateAddress(ctx context.Context, a checkout.Address) (*checkout.Address, error) {
	var e jx.Encoder
	encodeAddress(&e, a)

	var saved checkout.Address
	err := c.do(ctx, http.MethodPut, "/addresses/"+url.PathEscape(a.ID), e.Bytes(), func(d *jx.Decoder) error {
		var err error
		saved, err = decodeAddress(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	if saved.ID == "" {
		saved.ID = a.ID
	}
	return &saved, nil
}

// Cart returns the user's cart items.
func (c *Client) Cart(ctx context.Context) ([]checkout.CartItem, error) {
	var out []checkout.CartItem
	err := c.do(ctx, http.MethodGet, "/cart", nil, func(d *jx.Decoder) error {
		var err error
		out, err = decodeCart(d)
		return err
	})
	return out, err
}

// RemoveCartItems deletes purchased items from the user's cart.
func (c *Client) RemoveCartItems(ctx context.Context, ids []string) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("ids")
	encodeStrings(&e, ids)
	e.ObjEnd()
	return c.do(ctx, http.MethodDelete, "/cart/items", e.Bytes(), nil)
}

// UserDiscounts lists the discounts the user has collected.
func (c *Client) UserDiscounts(ctx context.Context) ([]discount.Record, error) {
	var out []discount.Record
	err := c.do(ctx, http.MethodGet, "/discounts/user", nil, func(d *jx.Decoder) error {
		var err error
		out, err = decodeRecords(d)
		return err
	})
	return out, err
}

// ValidateDiscountCode asks the marketplace what code is worth against
// subtotal.
func (c *Client) ValidateDiscountCode(ctx context.Context, code string, subtotal decimal.Decimal) (*promo.Result, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("subtotal")
	encodeDecimal(&e, subtotal)
	e.ObjEnd()

	res := &promo.Result{}
	err := c.do(ctx, http.MethodPost, "/discounts/validate", e.Bytes(), func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "discountAmount":
				v, err := decodeDecimal(d)
				res.DiscountAmount = v
				return err
			case "discount":
				if d.Next() == jx.Null {
					return d.Null()
				}
				r, err := decodeRecord(d)
				if err != nil {
					return err
				}
				res.Discount = &r
				return nil
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreateOrder creates an order from cart items.
func (c *Client) CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (*checkout.OrderRef, error) {
	return c.orderCall(ctx, http.MethodPost, "/orders", encodeCreateOrder(req))
}

// UpdateOrder changes shipping and payment details of an existing order.
func (c *Client) UpdateOrder(ctx context.Context, orderID string, req checkout.UpdateOrderRequest) (*checkout.OrderRef, error) {
	return c.orderCall(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID), encodeUpdateOrder(orderID, req))
}

func (c *Client) orderCall(ctx context.Context, method, path string, body []byte) (*checkout.OrderRef, error) {
	var ref checkout.OrderRef
	err := c.do(ctx, method, path, body, func(d *jx.Decoder) error {
		var err error
		ref, err = decodeOrderRef(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// PaymentURL requests a hosted payment page from the gateway of method.
func (c *Client) PaymentURL(ctx context.Context, method checkout.PaymentMethod, paymentID string, amount decimal.Decimal) (string, error) {
	var path string
	switch method {
	case checkout.PaymentVNPay:
		path = "/payments/vnpay"
	case checkout.PaymentMoMo:
		path = "/payments/momo"
	default:
		return "", errors.Wrapf(checkout.ErrInvalidPaymentMethod, "no gateway for %q", method)
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("paymentId")
	e.Str(paymentID)
	e.FieldStart("totalAmount")
	encodeDecimal(&e, amount)
	e.ObjEnd()

	var paymentURL string
	err := c.do(ctx, http.MethodPost, path, e.Bytes(), func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "paymentUrl" && key != "payUrl" {
				return d.Skip()
			}
			var err error
			paymentURL, err = decodeString(d)
			return err
		})
	})
	if err != nil {
		return "", err
	}
	if paymentURL == "" {
		return "", errors.New("gateway returned no payment URL")
	}
	return paymentURL, nil
}

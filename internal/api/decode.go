package api

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// The decoders below never fail on a field of the wrong type: such a field
// is skipped and left nil so the validator reports it. Only malformed JSON is
// an error.

// validate rejects malformed JSON, including anything after the top-level
// value.
func validate(body []byte) error {
	return jx.DecodeBytes(body).Validate()
}

// decodeCreate reads {"product":{"id":N,"quantity":N}}.
func decodeCreate(body []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	if err := validate(body); err != nil {
		return req, errors.Wrap(err, "decode order")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return req, nil
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "product" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				req.ProductID, err = optInt(d)
			case "quantity":
				req.Quantity, err = optInt(d)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		return req, errors.Wrap(err, "decode order")
	}
	return req, nil
}

// updateRequest is a PUT /order/{id} body. The has* flags record which keys
// were present regardless of their values.
type updateRequest struct {
	hasClient bool
	hasCard   bool

	client order.ClientInfoRequest
	card   order.CreditCardRequest
}

// decodeUpdate reads the update fields either at the top level or inside an
// "order" object.
func decodeUpdate(body []byte) (updateRequest, error) {
	var req updateRequest
	if err := validate(body); err != nil {
		return req, errors.Wrap(err, "decode order update")
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return req, nil
	}
	if err := d.Obj(req.field); err != nil {
		return req, errors.Wrap(err, "decode order update")
	}
	return req, nil
}

func (req *updateRequest) field(d *jx.Decoder, key string) error {
	switch key {
	case "order":
		if d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(req.field)
	case "email":
		req.hasClient = true
		v, err := optStr(d)
		req.client.Email = v
		return err
	case "shipping_information":
		req.hasClient = true
		if d.Next() != jx.Object {
			return d.Skip()
		}
		s := &order.ShippingRequest{}
		req.client.Shipping = s
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "country":
				s.Country, err = optStr(d)
			case "address":
				s.Address, err = optStr(d)
			case "postal_code":
				s.PostalCode, err = optStr(d)
			case "city":
				s.City, err = optStr(d)
			case "province":
				s.Province, err = optStr(d)
			default:
				err = d.Skip()
			}
			return err
		})
	case "credit_card":
		req.hasCard = true
		if d.Next() != jx.Object {
			return d.Skip()
		}
		c := &req.card
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "name":
				c.Name, err = optStr(d)
			case "number":
				c.Number, err = optStr(d)
			case "expiration_month":
				c.ExpirationMonth, err = optInt(d)
			case "expiration_year":
				c.ExpirationYear, err = optInt(d)
			case "cvv":
				c.CVV, err = optCVV(d)
			default:
				err = d.Skip()
			}
			return err
		})
	default:
		return d.Skip()
	}
}

func optStr(d *jx.Decoder) (*string, error) {
	if d.Next() != jx.String {
		return nil, d.Skip()
	}
	v, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// optInt accepts integral JSON numbers only.
func optInt(d *jx.Decoder) (*int64, error) {
	if d.Next() != jx.Number {
		return nil, d.Skip()
	}
	n, err := d.Num()
	if err != nil {
		return nil, err
	}
	v, err := n.Int64()
	if err != nil {
		return nil, nil
	}
	return &v, nil
}

// optCVV accepts "123" as well as 123.
func optCVV(d *jx.Decoder) (*string, error) {
	if d.Next() != jx.Number {
		return optStr(d)
	}
	n, err := d.Num()
	if err != nil {
		return nil, err
	}
	v := string(n)
	return &v, nil
}

package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

var errClientAndCard = &order.Error{
	Code:    order.CodeInvalidClientInfo,
	Message: "Client informations and a credit card cannot be supplied in the same request.",
}

// CreateOrder handles POST /order. It answers 201 with the order and a
// Location header pointing at it.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeCreate(body)
	if err != nil {
		h.writeError(w, r, order.ErrInvalidOrderRequest)
		return
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/order/"+strconv.FormatInt(o.ID, 10))
	writeOrder(w, http.StatusCreated, o)
}

// GetOrder handles GET /order/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		h.writeError(w, r, order.ErrOrderNotFound)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// UpdateOrder handles PUT /order/{id}. The body carries either email and
// shipping_information or credit_card, never both.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		h.writeError(w, r, order.ErrOrderNotFound)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeUpdate(body)
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "malformed-body", "The request body is not valid JSON.")
		return
	}

	ctx := r.Context()
	var o *order.Order
	switch {
	case req.hasClient && !req.hasCard:
		o, err = h.orders.SetClientInfo(ctx, id, req.client)
	case req.hasCard && !req.hasClient:
		o, err = h.orders.SetCreditCard(ctx, id, req.card)
	default:
		// A missing order still wins over a bad body.
		if _, err = h.orders.Get(ctx, id); err == nil {
			err = order.ErrInvalidClientInfo
			if req.hasCard {
				err = errClientAndCard
			}
		}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func orderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusRequestEntityTooLarge, "body-too-large", "The request body is too large.")
		return nil, false
	}
	return body, true
}

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
	writeJSON(w, status, e.Bytes())
}

// encodeOrder renders every field of the order. Parts the order does not
// have yet are null, or {} for nested objects. The card number and cvv never
// leave the server.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	client, hasClient := o.ClientInfo()
	pricing, hasPricing := o.Pricing()
	card, txn, hasPayment := o.Payment()

	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("product", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(o.ProductID) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(o.Quantity) })
			})
		})
		e.Field("email", func(e *jx.Encoder) {
			if !hasClient {
				e.Null()
				return
			}
			e.Str(client.Email)
		})
		e.Field("shipping_information", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				if !hasClient {
					return
				}
				s := client.Shipping
				e.Field("country", func(e *jx.Encoder) { e.Str(s.Country) })
				e.Field("address", func(e *jx.Encoder) { e.Str(s.Address) })
				e.Field("postal_code", func(e *jx.Encoder) { e.Str(s.PostalCode) })
				e.Field("city", func(e *jx.Encoder) { e.Str(s.City) })
				e.Field("province", func(e *jx.Encoder) { e.Str(s.Province) })
			})
		})
		e.Field("credit_card", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				if !hasPayment {
					return
				}
				first, last := maskNumber(card.Number)
				e.Field("name", func(e *jx.Encoder) { e.Str(card.Name) })
				e.Field("first_digits", func(e *jx.Encoder) { e.Str(first) })
				e.Field("last_digits", func(e *jx.Encoder) { e.Str(last) })
				e.Field("expiration_year", func(e *jx.Encoder) { e.Int(card.ExpirationYear) })
				e.Field("expiration_month", func(e *jx.Encoder) { e.Int(card.ExpirationMonth) })
			})
		})
		e.Field("transaction", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				if !hasPayment {
					return
				}
				e.Field("id", func(e *jx.Encoder) { e.Str(txn.ID) })
				e.Field("success", func(e *jx.Encoder) { e.Bool(txn.Success) })
				e.Field("amount_charged", func(e *jx.Encoder) { encodeAmount(e, txn.AmountCharged) })
			})
		})
		e.Field("paid", func(e *jx.Encoder) { e.Bool(o.Paid()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status())) })
		e.Field("total_price", func(e *jx.Encoder) {
			if !hasPricing {
				e.Null()
				return
			}
			encodeAmount(e, &pricing.TotalPrice)
		})
		e.Field("shipping_price", func(e *jx.Encoder) {
			if !hasPricing {
				e.Null()
				return
			}
			encodeAmount(e, &pricing.ShippingPrice)
		})
	})
}

func encodeAmount(e *jx.Encoder, d *decimal.Decimal) {
	if d == nil {
		e.Null()
		return
	}
	e.Num(jx.Num(d.String()))
}

// maskNumber returns the first and last four digits of a card number.
func maskNumber(number string) (first, last string) {
	digits := strings.Map(func(r rune) rune {
		if r < '0' || r > '9' {
			return -1
		}
		return r
	}, number)
	if len(digits) < 8 {
		return "", ""
	}
	return digits[:4], digits[len(digits)-4:]
}

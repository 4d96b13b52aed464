// Package payment implements order.Gateway against the remote transaction
// service, plus a local sandbox.
package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// DefaultURL is the transaction service used by the course storefront.
const DefaultURL = "https://dimprojetu.uqac.ca/~jgnault/shops/pay/"

const maxResponseSize = 1 << 20

var _ order.Gateway = (*Client)(nil)

// Client charges cards through the remote transaction service:
//
//	POST {url} {"credit_card": {...}, "amount_charged": 66.2}
//	200 {"transaction": {"id": "...", "success": true, "amount_charged": 66.2}}
//	422 {"errors": {"credit_card": {"code": "card-declined", "name": "..."}}}
//
// A 422 carrying a credit card error is a declined charge, reported as an
// unsuccessful transaction with a locally generated id.
type Client struct {
	url   string
	http  *http.Client
	newID func() string
}

// NewClient returns a Client posting to url. A nil httpClient means
// http.DefaultClient.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:   url,
		http:  httpClient,
		newID: uuid.NewString,
	}
}

// Charge sends one charge request. The context bounds the whole exchange.
func (c *Client) Charge(ctx context.Context, ch order.Charge) (*order.Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encodeCharge(ch)))
	if err != nil {
		return nil, order.ErrGatewayError.WithCause(errors.Wrap(err, "create request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, order.ErrGatewayTimeout.WithCause(err)
		}
		return nil, order.ErrGatewayError.WithCause(errors.Wrap(err, "send charge"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return nil, order.ErrGatewayTimeout.WithCause(err)
		}
		return nil, order.ErrGatewayError.WithCause(errors.Wrap(err, "read response"))
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		txn, err := decodeTransaction(body)
		if err != nil {
			return nil, order.ErrGatewayError.WithCause(errors.Wrap(err, "decode transaction"))
		}
		return txn, nil
	case http.StatusUnprocessableEntity:
		code, err := decodeCardError(body)
		if err != nil || code == "" {
			return nil, order.ErrGatewayError.WithCause(errors.Errorf("unexpected 422 response: %s", truncate(body)))
		}
		return &order.Transaction{ID: c.newID(), Success: false}, nil
	default:
		return nil, order.ErrGatewayError.WithCause(
			errors.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body)),
		)
	}
}

func encodeCharge(ch order.Charge) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("credit_card", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(ch.Card.Name) })
				e.Field("number", func(e *jx.Encoder) { e.Str(ch.Card.Number) })
				e.Field("expiration_year", func(e *jx.Encoder) { e.Int(ch.Card.ExpirationYear) })
				e.Field("cvv", func(e *jx.Encoder) { e.Str(ch.Card.CVV) })
				e.Field("expiration_month", func(e *jx.Encoder) { e.Int(ch.Card.ExpirationMonth) })
			})
		})
		e.Field("amount_charged", func(e *jx.Encoder) { e.Num(jx.Num(ch.Amount.String())) })
	})
	return e.Bytes()
}

func decodeTransaction(body []byte) (*order.Transaction, error) {
	var (
		txn   order.Transaction
		found bool
	)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "transaction" {
			return d.Skip()
		}
		found = true
		return d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				id, err := decodeID(d)
				txn.ID = id
				return err
			case "success":
				v, err := d.Bool()
				txn.Success = v
				return err
			case "amount_charged":
				amount, err := decodeAmount(d)
				txn.AmountCharged = amount
				return err
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if !found || txn.ID == "" {
		return nil, errors.New("response has no transaction")
	}
	return &txn, nil
}

// decodeCardError returns errors.credit_card.code of a 422 body.
func decodeCardError(body []byte) (string, error) {
	var code string
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "errors" {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "credit_card" {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "code" {
					return d.Skip()
				}
				v, err := d.Str()
				code = v
				return err
			})
		})
	})
	return code, err
}

func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.Errorf("unexpected %s for transaction id", d.Next())
	}
}

func decodeAmount(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = n.String()
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse amount_charged")
	}
	return &amount, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return fmt.Sprintf("%s...", body[:limit])
	}
	return string(body)
}

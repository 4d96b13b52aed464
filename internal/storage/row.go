// Package storage holds the row mapping shared by the SQL order stores.
package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// SelectOrderColumns lists the columns OrderRow.Fields scans, in order. Stores
// append their own created_at column after them.
const SelectOrderColumns = `o.id, o.product_id, o.product_quantity, o.email,
	o.total_price, o.shipping_price, o.paid,
	s.id, s.country, s.address, s.postal_code, s.city, s.province,
	c.id, c.name, c.number, c.expiration_month, c.expiration_year, c.cvv,
	t.id, t.success, t.amount_charged`

// OrderJoins attaches the shipping, card and transaction rows to orders o.
const OrderJoins = `LEFT JOIN shipping_information s ON s.id = o.shipping_information_id
	LEFT JOIN credit_cards c ON c.id = o.credit_card_id
	LEFT JOIN transactions t ON t.id = o.transaction_id`

// OrderRow is one orders row joined with its optional records.
type OrderRow struct {
	ID            int64
	ProductID     int64
	Quantity      int
	Email         *string
	TotalPrice    decimal.NullDecimal
	ShippingPrice decimal.NullDecimal
	Paid          bool
	CreatedAt     time.Time

	ShippingID *int64
	Country    *string
	Address    *string
	PostalCode *string
	City       *string
	Province   *string

	CardID          *int64
	CardName        *string
	CardNumber      *string
	ExpirationMonth *int
	ExpirationYear  *int
	CVV             *string

	TransactionID *string
	Success       *bool
	AmountCharged decimal.NullDecimal
}

// Fields returns scan destinations matching SelectOrderColumns.
func (r *OrderRow) Fields() []any {
	return []any{
		&r.ID, &r.ProductID, &r.Quantity, &r.Email,
		&r.TotalPrice, &r.ShippingPrice, &r.Paid,
		&r.ShippingID, &r.Country, &r.Address, &r.PostalCode, &r.City, &r.Province,
		&r.CardID, &r.CardName, &r.CardNumber, &r.ExpirationMonth, &r.ExpirationYear, &r.CVV,
		&r.TransactionID, &r.Success, &r.AmountCharged,
	}
}

// Order rebuilds the domain order, rejecting inconsistent rows.
func (r *OrderRow) Order() (*order.Order, error) {
	var (
		client  *order.Client
		pricing *order.Pricing
		card    *order.CreditCard
		txn     *order.Transaction
	)
	if r.Email != nil && r.ShippingID != nil {
		client = &order.Client{
			Email: *r.Email,
			Shipping: order.ShippingInformation{
				ID:         *r.ShippingID,
				Country:    deref(r.Country),
				Address:    deref(r.Address),
				PostalCode: deref(r.PostalCode),
				City:       deref(r.City),
				Province:   deref(r.Province),
			},
		}
	}
	if r.TotalPrice.Valid && r.ShippingPrice.Valid {
		pricing = &order.Pricing{
			TotalPrice:    r.TotalPrice.Decimal,
			ShippingPrice: r.ShippingPrice.Decimal,
		}
	}
	if r.CardID != nil {
		card = &order.CreditCard{
			ID:              *r.CardID,
			Name:            deref(r.CardName),
			Number:          deref(r.CardNumber),
			ExpirationMonth: derefInt(r.ExpirationMonth),
			ExpirationYear:  derefInt(r.ExpirationYear),
			CVV:             deref(r.CVV),
		}
	}
	if r.TransactionID != nil {
		txn = &order.Transaction{
			ID:      *r.TransactionID,
			Success: r.Success != nil && *r.Success,
		}
		if r.AmountCharged.Valid {
			amount := r.AmountCharged.Decimal
			txn.AmountCharged = &amount
		}
	}

	state, err := order.Restore(client, pricing, card, txn, r.Paid)
	if err != nil {
		return nil, err
	}
	return &order.Order{
		ID:        r.ID,
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		State:     state,
		CreatedAt: r.CreatedAt,
	}, nil
}

// OrderValues are the nullable orders columns derived from a State.
type OrderValues struct {
	Email         *string
	ShippingID    *int64
	CardID        *int64
	TransactionID *string
	TotalPrice    decimal.NullDecimal
	ShippingPrice decimal.NullDecimal
	Paid          bool
}

// ValuesOf flattens the state of o into column values. Moving back to
// AddressSet clears the card and transaction references; the old rows stay.
func ValuesOf(o *order.Order) OrderValues {
	var v OrderValues
	if client, ok := o.ClientInfo(); ok {
		v.Email = &client.Email
		v.ShippingID = &client.Shipping.ID
	}
	if pricing, ok := o.Pricing(); ok {
		v.TotalPrice = decimal.NewNullDecimal(pricing.TotalPrice)
		v.ShippingPrice = decimal.NewNullDecimal(pricing.ShippingPrice)
	}
	if card, txn, ok := o.Payment(); ok {
		v.CardID = &card.ID
		v.TransactionID = &txn.ID
	}
	v.Paid = o.Paid()
	return v
}

// NullAmount converts an optional amount into a nullable column value.
func NullAmount(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

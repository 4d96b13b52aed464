package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status names the lifecycle state of an order.
type Status string

const (
	StatusCreated       Status = "created"
	StatusAddressSet    Status = "address_set"
	StatusPaymentFailed Status = "payment_failed"
	StatusPaid          Status = "paid"
)

// State is the sealed set of order states. Each variant carries exactly the
// data that exists in that state:
//
//	Created       product and quantity only
//	AddressSet    + client information and pricing
//	PaymentFailed + the declined card and its transaction
//	Paid          + the charged card and its successful transaction (terminal)
type State interface {
	Status() Status
	state()
}

// Created is the initial state: only the product and quantity are known.
type Created struct{}

// AddressSet holds an order whose client information and prices are known.
type AddressSet struct {
	Client  Client
	Pricing Pricing
}

// PaymentFailed holds an order whose last charge attempt was declined. It
// accepts a new credit card like AddressSet does.
type PaymentFailed struct {
	Client      Client
	Pricing     Pricing
	Card        CreditCard
	Transaction Transaction
}

// Paid is terminal.
type Paid struct {
	Client      Client
	Pricing     Pricing
	Card        CreditCard
	Transaction Transaction
}

func (Created) Status() Status       { return StatusCreated }
func (AddressSet) Status() Status    { return StatusAddressSet }
func (PaymentFailed) Status() Status { return StatusPaymentFailed }
func (Paid) Status() Status          { return StatusPaid }

func (Created) state()       {}
func (AddressSet) state()    {}
func (PaymentFailed) state() {}
func (Paid) state()          {}

// ShippingInformation is the delivery address of one order.
type ShippingInformation struct {
	ID         int64
	Country    string
	Address    string
	PostalCode string
	City       string
	Province   string
}

// Client groups the contact data attached to an order.
type Client struct {
	Email    string
	Shipping ShippingInformation
}

// CreditCard is the card submitted for one charge attempt.
type CreditCard struct {
	ID              int64
	Name            string
	Number          string
	ExpirationMonth int
	ExpirationYear  int
	CVV             string
}

// Transaction is the outcome of one charge attempt as reported by the gateway.
// AmountCharged is nil when the gateway did not charge anything.
type Transaction struct {
	ID            string
	Success       bool
	AmountCharged *decimal.Decimal
}

// Pricing holds the prices computed when client information is attached.
type Pricing struct {
	TotalPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
}

// Amount is what the gateway is asked to charge.
func (p Pricing) Amount() decimal.Decimal {
	return p.TotalPrice.Add(p.ShippingPrice)
}

// Order is a single-product order.
type Order struct {
	ID        int64
	ProductID int64
	Quantity  int
	State     State
	CreatedAt time.Time
}

// Status reports the lifecycle state; a nil State reads as Created.
func (o *Order) Status() Status {
	if o.State == nil {
		return StatusCreated
	}
	return o.State.Status()
}

// Paid reports whether the order has been paid.
func (o *Order) Paid() bool {
	_, ok := o.State.(Paid)
	return ok
}

// ClientInfo returns the client information when it has been attached.
func (o *Order) ClientInfo() (Client, bool) {
	switch s := o.State.(type) {
	case AddressSet:
		return s.Client, true
	case PaymentFailed:
		return s.Client, true
	case Paid:
		return s.Client, true
	}
	return Client{}, false
}

// Pricing returns the computed prices when they are known.
func (o *Order) Pricing() (Pricing, bool) {
	switch s := o.State.(type) {
	case AddressSet:
		return s.Pricing, true
	case PaymentFailed:
		return s.Pricing, true
	case Paid:
		return s.Pricing, true
	}
	return Pricing{}, false
}

// Payment returns the card and transaction of the latest charge attempt.
func (o *Order) Payment() (CreditCard, Transaction, bool) {
	switch s := o.State.(type) {
	case PaymentFailed:
		return s.Card, s.Transaction, true
	case Paid:
		return s.Card, s.Transaction, true
	}
	return CreditCard{}, Transaction{}, false
}

// Restore rebuilds the state from the nullable columns a store keeps. It is
// the only place where persisted rows turn back into a State, so
// inconsistent rows are rejected here instead of producing impossible states.
func Restore(client *Client, pricing *Pricing, card *CreditCard, txn *Transaction, paid bool) (State, error) {
	switch {
	case client == nil && pricing == nil && card == nil && txn == nil && !paid:
		return Created{}, nil
	case client == nil || pricing == nil:
		return nil, withMessage(ErrStorage, "order row has prices or payment data without client information")
	case card == nil && txn == nil && !paid:
		return AddressSet{Client: *client, Pricing: *pricing}, nil
	case card == nil || txn == nil:
		return nil, withMessage(ErrStorage, "order row has an incomplete payment attempt")
	case paid != txn.Success:
		return nil, withMessage(ErrStorage, "order paid flag disagrees with its transaction")
	case paid:
		return Paid{Client: *client, Pricing: *pricing, Card: *card, Transaction: *txn}, nil
	default:
		return PaymentFailed{Client: *client, Pricing: *pricing, Card: *card, Transaction: *txn}, nil
	}
}

// Tx writes the records attached to one order inside a single storage
// transaction opened by Repository.WithOrder.
type Tx interface {
	// SaveShippingInformation inserts info when info.ID is zero and updates
	// the existing row otherwise. It sets info.ID on insert.
	SaveShippingInformation(ctx context.Context, info *ShippingInformation) error
	CreateCreditCard(ctx context.Context, card *CreditCard) error
	CreateTransaction(ctx context.Context, txn *Transaction) error
	UpdateOrder(ctx context.Context, o *Order) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order in the Created state and sets its ID and
	// CreatedAt.
	Create(ctx context.Context, o *Order) error
	// GetByID returns ErrOrderNotFound when no order has the given id.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// WithOrder loads the order with the given id while holding exclusive
	// access to it, runs fn, and commits every write made through tx when fn
	// returns nil. Any error from fn rolls all of them back. Returns
	// ErrOrderNotFound when no order has the given id.
	WithOrder(ctx context.Context, id int64, fn func(ctx context.Context, o *Order, tx Tx) error) error
}

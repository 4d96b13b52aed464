package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// Charge is one payment request sent to the transaction service.
type Charge struct {
	OrderID int64
	Amount  decimal.Decimal
	Card    CreditCard
}

// Gateway executes charges against the external transaction service.
//
// A declined card is not an error: it is reported as a Transaction with
// Success=false. Errors mean the service could not be reached or answered
// unexpectedly; implementations should return errors matching
// ErrGatewayTimeout or ErrGatewayError.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (*Transaction, error)
}

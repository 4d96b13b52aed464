package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/order"
)

// DefaultDeclinedNumber is the card number the sandbox always declines.
const DefaultDeclinedNumber = "4000 0000 0000 0002"

var _ order.Gateway = (*Sandbox)(nil)

// Sandbox approves every charge except those made with a declined number.
// It is meant for local runs and tests.
type Sandbox struct {
	declined map[string]struct{}
}

// NewSandbox returns a Sandbox declining the given card numbers. Numbers are
// compared without spaces. With no numbers, DefaultDeclinedNumber is used.
func NewSandbox(declined ...string) *Sandbox {
	if len(declined) == 0 {
		declined = []string{DefaultDeclinedNumber}
	}
	s := &Sandbox{declined: make(map[string]struct{}, len(declined))}
	for _, n := range declined {
		s.declined[normalizeNumber(n)] = struct{}{}
	}
	return s
}

// Charge records an approval or a decline. It fails only when ctx is done.
func (s *Sandbox) Charge(ctx context.Context, ch order.Charge) (*order.Transaction, error) {
	if err := ctx.Err(); err != nil {
		if isTimeout(err) {
			return nil, order.ErrGatewayTimeout.WithCause(err)
		}
		return nil, order.ErrGatewayError.WithCause(err)
	}
	txn := &order.Transaction{ID: uuid.NewString()}
	if _, ok := s.declined[normalizeNumber(ch.Card.Number)]; ok {
		return txn, nil
	}
	amount := ch.Amount
	txn.Success = true
	txn.AmountCharged = &amount
	return txn, nil
}

func normalizeNumber(n string) string {
	return strings.ReplaceAll(n, " ", "")
}

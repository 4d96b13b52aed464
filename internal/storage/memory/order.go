package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository keeps orders in a map. WithOrder serializes callers per
// order and applies their writes only when fn succeeds.
type OrderRepository struct {
	products *ProductRepository

	mu           sync.RWMutex
	orders       map[int64]order.Order
	locks        map[int64]*sync.Mutex
	transactions map[string]order.Transaction
	cards        map[int64]order.CreditCard

	lastOrderID    int64
	lastShippingID int64
	lastCardID     int64
}

// NewOrderRepository creates an empty OrderRepository. Orders may only
// reference products known to products.
func NewOrderRepository(products *ProductRepository) *OrderRepository {
	return &OrderRepository{
		products:     products,
		orders:       make(map[int64]order.Order),
		locks:        make(map[int64]*sync.Mutex),
		transactions: make(map[string]order.Transaction),
		cards:        make(map[int64]order.CreditCard),
	}
}

// Create stores a new order and sets its ID and CreatedAt.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	if !r.products.exists(o.ProductID) {
		return errors.Errorf("product %d does not exist", o.ProductID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastOrderID++
	o.ID = r.lastOrderID
	o.CreatedAt = time.Now().UTC()
	if o.State == nil {
		o.State = order.Created{}
	}
	r.orders[o.ID] = *o
	r.locks[o.ID] = new(sync.Mutex)
	return nil
}

// GetByID returns a copy of the stored order or order.ErrOrderNotFound.
func (r *OrderRepository) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, _, ok := r.get(id)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

// WithOrder runs fn while holding the lock of the order.
func (r *OrderRepository) WithOrder(
	ctx context.Context,
	id int64,
	fn func(ctx context.Context, o *order.Order, tx order.Tx) error,
) error {
	_, lock, ok := r.get(id)
	if !ok {
		return order.ErrOrderNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the order lock.
	o, _, _ := r.get(id)
	tx := &orderTx{repo: r}
	if err := fn(ctx, &o, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range tx.cards {
		r.cards[c.ID] = c
	}
	for _, t := range tx.transactions {
		r.transactions[t.ID] = t
	}
	if tx.updated != nil {
		r.orders[id] = *tx.updated
	}
	return nil
}

func (r *OrderRepository) get(id int64) (order.Order, *sync.Mutex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	return o, r.locks[id], ok
}

// orderTx buffers writes until WithOrder commits them. Shipping rows live
// inside the order state, so saving one only allocates an ID.
type orderTx struct {
	repo         *OrderRepository
	cards        []order.CreditCard
	transactions []order.Transaction
	updated      *order.Order
}

func (t *orderTx) SaveShippingInformation(_ context.Context, info *order.ShippingInformation) error {
	if info.ID != 0 {
		return nil
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	t.repo.lastShippingID++
	info.ID = t.repo.lastShippingID
	return nil
}

func (t *orderTx) CreateCreditCard(_ context.Context, card *order.CreditCard) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	t.repo.lastCardID++
	card.ID = t.repo.lastCardID
	t.cards = append(t.cards, *card)
	return nil
}

func (t *orderTx) CreateTransaction(_ context.Context, txn *order.Transaction) error {
	t.repo.mu.RLock()
	_, exists := t.repo.transactions[txn.ID]
	t.repo.mu.RUnlock()
	if exists {
		return errors.Errorf("transaction %q already exists", txn.ID)
	}
	t.transactions = append(t.transactions, *txn)
	return nil
}

func (t *orderTx) UpdateOrder(_ context.Context, o *order.Order) error {
	if _, _, ok := t.repo.get(o.ID); !ok {
		return order.ErrOrderNotFound
	}
	cp := *o
	t.updated = &cp
	return nil
}

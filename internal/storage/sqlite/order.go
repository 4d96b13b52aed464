package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/storage"
)

const (
	createOrderSQL = `INSERT INTO orders (product_id, product_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?)`

	getOrderSQL = `SELECT ` + storage.SelectOrderColumns + `, o.created_at
		FROM orders o ` + storage.OrderJoins + `
		WHERE o.id = ?`

	updateOrderSQL = `UPDATE orders SET
		email = ?, shipping_information_id = ?, credit_card_id = ?, transaction_id = ?,
		total_price = ?, shipping_price = ?, paid = ?, updated_at = ?
		WHERE id = ?`

	insertShippingSQL = `INSERT INTO shipping_information (country, address, postal_code, city, province)
		VALUES (?, ?, ?, ?, ?)`

	updateShippingSQL = `UPDATE shipping_information
		SET country = ?, address = ?, postal_code = ?, city = ?, province = ?
		WHERE id = ?`

	insertCreditCardSQL = `INSERT INTO credit_cards (name, number, expiration_month, expiration_year, cvv)
		VALUES (?, ?, ?, ?, ?)`

	insertTransactionSQL = `INSERT INTO transactions (id, success, amount_charged)
		VALUES (?, ?, ?)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by SQLite.
type OrderRepository struct {
	db    *sql.DB
	locks *orderLocks
	now   func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses conn. Every
// OrderRepository sharing a database file must be the same value, since
// WithOrder serializes callers in process.
func NewOrderRepository(conn *sql.DB) *OrderRepository {
	return &OrderRepository{db: conn, locks: newOrderLocks(), now: time.Now}
}

// Create inserts a new order and sets its ID and CreatedAt.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, createOrderSQL, o.ProductID, o.Quantity, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("sqlite: create order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: create order: %w", err)
	}
	o.ID = id
	o.CreatedAt = now
	return nil
}

// GetByID loads an order with its shipping, card and transaction rows.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return loadOrder(ctx, r.db, id)
}

// WithOrder holds the lock of the order while fn runs. The write
// transaction begins on the first write made through tx, so fn may block
// (on a gateway call, for example) without holding the only connection.
func (r *OrderRepository) WithOrder(
	ctx context.Context,
	id int64,
	fn func(ctx context.Context, o *order.Order, tx order.Tx) error,
) error {
	unlock := r.locks.lock(id)
	defer unlock()

	o, err := loadOrder(ctx, r.db, id)
	if err != nil {
		return err
	}
	tx := &orderTx{db: r.db, now: r.now}
	defer tx.rollback()

	if err := fn(ctx, o, tx); err != nil {
		return err
	}
	if err := tx.commit(); err != nil {
		return fmt.Errorf("sqlite: commit order %d: %w", id, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadOrder(ctx context.Context, q querier, id int64) (*order.Order, error) {
	var (
		r         storage.OrderRow
		createdAt string
	)
	err := q.QueryRowContext(ctx, getOrderSQL, id).Scan(append(r.Fields(), &createdAt)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("sqlite: get order %d: %w", id, err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return r.Order()
}

// orderTx opens its transaction lazily.
type orderTx struct {
	db  *sql.DB
	tx  *sql.Tx
	now func() time.Time
}

func (t *orderTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.tx == nil {
		tx, err := t.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("sqlite: begin: %w", err)
		}
		t.tx = tx
	}
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *orderTx) commit() error {
	if t.tx == nil {
		return nil
	}
	err := t.tx.Commit()
	t.tx = nil
	return err
}

func (t *orderTx) rollback() {
	if t.tx != nil {
		_ = t.tx.Rollback()
		t.tx = nil
	}
}

func (t *orderTx) SaveShippingInformation(ctx context.Context, info *order.ShippingInformation) error {
	if info.ID == 0 {
		res, err := t.exec(ctx, insertShippingSQL,
			info.Country, info.Address, info.PostalCode, info.City, info.Province,
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert shipping information: %w", err)
		}
		if info.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqlite: insert shipping information: %w", err)
		}
		return nil
	}

	_, err := t.exec(ctx, updateShippingSQL,
		info.Country, info.Address, info.PostalCode, info.City, info.Province, info.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update shipping information %d: %w", info.ID, err)
	}
	return nil
}

func (t *orderTx) CreateCreditCard(ctx context.Context, card *order.CreditCard) error {
	res, err := t.exec(ctx, insertCreditCardSQL,
		card.Name, card.Number, card.ExpirationMonth, card.ExpirationYear, card.CVV,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert credit card: %w", err)
	}
	if card.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: insert credit card: %w", err)
	}
	return nil
}

func (t *orderTx) CreateTransaction(ctx context.Context, txn *order.Transaction) error {
	_, err := t.exec(ctx, insertTransactionSQL, txn.ID, txn.Success, storage.NullAmount(txn.AmountCharged))
	if err != nil {
		return fmt.Errorf("sqlite: insert transaction %q: %w", txn.ID, err)
	}
	return nil
}

func (t *orderTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	v := storage.ValuesOf(o)
	_, err := t.exec(ctx, updateOrderSQL,
		v.Email, v.ShippingID, v.CardID, v.TransactionID,
		v.TotalPrice, v.ShippingPrice, v.Paid, formatTime(t.now()),
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update order %d: %w", o.ID, err)
	}
	return nil
}

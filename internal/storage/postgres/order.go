package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/storage"
)

const (
	createOrderSQL = `INSERT INTO orders (product_id, product_quantity)
		VALUES ($1, $2) RETURNING id, created_at`

	getOrderSQL = `SELECT ` + storage.SelectOrderColumns + `, o.created_at
		FROM orders o ` + storage.OrderJoins + `
		WHERE o.id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE OF o`

	updateOrderSQL = `UPDATE orders SET
		email = $2, shipping_information_id = $3, credit_card_id = $4, transaction_id = $5,
		total_price = $6, shipping_price = $7, paid = $8, updated_at = now()
		WHERE id = $1`

	insertShippingSQL = `INSERT INTO shipping_information (country, address, postal_code, city, province)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	updateShippingSQL = `UPDATE shipping_information
		SET country = $2, address = $3, postal_code = $4, city = $5, province = $6
		WHERE id = $1`

	insertCreditCardSQL = `INSERT INTO credit_cards (name, number, expiration_month, expiration_year, cvv)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	insertTransactionSQL = `INSERT INTO transactions (id, success, amount_charged)
		VALUES ($1, $2, $3)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Mutations
// hold a row lock on the order for the duration of the transaction.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order and sets its ID and CreatedAt.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.pool.QueryRow(ctx, createOrderSQL, o.ProductID, o.Quantity).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// GetByID loads an order with its shipping, card and transaction rows.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return loadOrder(ctx, r.pool, getOrderSQL, id)
}

// WithOrder runs fn inside a transaction holding SELECT ... FOR UPDATE on the
// order row.
func (r *OrderRepository) WithOrder(
	ctx context.Context,
	id int64,
	fn func(ctx context.Context, o *order.Order, tx order.Tx) error,
) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		o, err := loadOrder(ctx, tx, lockOrderSQL, id)
		if err != nil {
			return err
		}
		return fn(ctx, o, &orderTx{tx: tx})
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOrder(ctx context.Context, q querier, query string, id int64) (*order.Order, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var r storage.OrderRow
	if err := row.Scan(append(r.Fields(), &r.CreatedAt)...); err != nil {
		return nil, err
	}
	return r.Order()
}

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) SaveShippingInformation(ctx context.Context, info *order.ShippingInformation) error {
	if info.ID == 0 {
		err := t.tx.QueryRow(ctx, insertShippingSQL,
			info.Country, info.Address, info.PostalCode, info.City, info.Province,
		).Scan(&info.ID)
		if err != nil {
			return fmt.Errorf("inserting shipping information: %w", err)
		}
		return nil
	}

	_, err := t.tx.Exec(ctx, updateShippingSQL,
		info.ID, info.Country, info.Address, info.PostalCode, info.City, info.Province,
	)
	if err != nil {
		return fmt.Errorf("updating shipping information %d: %w", info.ID, err)
	}
	return nil
}

func (t *orderTx) CreateCreditCard(ctx context.Context, card *order.CreditCard) error {
	err := t.tx.QueryRow(ctx, insertCreditCardSQL,
		card.Name, card.Number, card.ExpirationMonth, card.ExpirationYear, card.CVV,
	).Scan(&card.ID)
	if err != nil {
		return fmt.Errorf("inserting credit card: %w", err)
	}
	return nil
}

func (t *orderTx) CreateTransaction(ctx context.Context, txn *order.Transaction) error {
	_, err := t.tx.Exec(ctx, insertTransactionSQL, txn.ID, txn.Success, storage.NullAmount(txn.AmountCharged))
	if err != nil {
		return fmt.Errorf("inserting transaction %q: %w", txn.ID, err)
	}
	return nil
}

func (t *orderTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	v := storage.ValuesOf(o)
	_, err := t.tx.Exec(ctx, updateOrderSQL,
		o.ID, v.Email, v.ShippingID, v.CardID, v.TransactionID,
		v.TotalPrice, v.ShippingPrice, v.Paid,
	)
	if err != nil {
		return fmt.Errorf("updating order %d: %w", o.ID, err)
	}
	return nil
}

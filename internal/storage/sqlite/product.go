package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, type, description, image, height, weight, price, rating, in_stock
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, type, description, image, height, weight, price, rating, in_stock
		FROM products WHERE id = ?`

	upsertProductSQL = `INSERT INTO products (id, name, type, description, image, height, weight, price, rating, in_stock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, type = excluded.type, description = excluded.description,
			image = excluded.image, height = excluded.height, weight = excluded.weight,
			price = excluded.price, rating = excluded.rating, in_stock = excluded.in_stock`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Writer     = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository backed by SQLite.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository returns a ProductRepository that uses conn.
func NewProductRepository(conn *sql.DB) *ProductRepository {
	return &ProductRepository{db: conn}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.QueryContext(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list products: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list products: %w", err)
	}
	return products, nil
}

// GetByID returns a single product or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, getProductByIDSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get product %d: %w", id, err)
	}
	return &p, nil
}

// Upsert inserts the product or replaces the stored one with the same ID.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.ExecContext(ctx, upsertProductSQL,
		p.ID, p.Name, p.Type, p.Description, p.Image,
		p.Height, p.Weight, p.Price.String(), p.Rating, p.InStock,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert product %d: %w", p.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Type, &p.Description, &p.Image,
		&p.Height, &p.Weight, &p.Price, &p.Rating, &p.InStock,
	)
	return p, err
}

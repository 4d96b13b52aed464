package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// MaxRating is the upper bound of Product.Rating.
const MaxRating = 5

// Product represents a catalog item available for purchase. Products are
// read-only for the order API; they are written only by the catalog seeder.
type Product struct {
	ID          int64
	Name        string
	Type        string
	Description string
	Image       string
	Height      int
	Weight      int
	Price       decimal.Decimal
	Rating      int
	InStock     bool
}

// Validate checks the catalog constraints a product must satisfy before it
// can be stored.
func (p Product) Validate() error {
	switch {
	case p.ID <= 0:
		return errors.Errorf("product id must be positive, got %d", p.ID)
	case p.Name == "":
		return errors.Errorf("product %d: name required", p.ID)
	case p.Height <= 0:
		return errors.Errorf("product %d: height must be positive", p.ID)
	case p.Weight <= 0:
		return errors.Errorf("product %d: weight must be positive", p.ID)
	case !p.Price.IsPositive():
		return errors.Errorf("product %d: price must be positive", p.ID)
	case p.Rating < 0 || p.Rating > MaxRating:
		return errors.Errorf("product %d: rating %d out of range [0,%d]", p.ID, p.Rating, MaxRating)
	}
	return nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}

// Writer stores catalog entries. Only the seeder uses it.
type Writer interface {
	Upsert(ctx context.Context, p Product) error
}

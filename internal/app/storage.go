package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/sqlite"
	"github.com/xenking/storefront/pkg/health"
)

// Storage is an opened store of the configured driver.
type Storage struct {
	Products product.Repository
	Catalog  product.Writer
	Orders   order.Repository
	// Ping is nil for the memory driver.
	Ping health.Pinger

	migrate func(context.Context) error
	drop    func(context.Context) error
	close   func()
}

// OpenStorage connects to the configured database. The schema is not
// touched; call Migrate.
func OpenStorage(ctx context.Context, cfg StorageConfig) (*Storage, error) {
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		products := postgres.NewProductRepository(pool)
		return &Storage{
			Products: products,
			Catalog:  products,
			Orders:   postgres.NewOrderRepository(pool),
			Ping:     pool,
			migrate:  func(ctx context.Context) error { return postgres.Migrate(ctx, pool) },
			drop:     func(ctx context.Context) error { return postgres.Drop(ctx, pool) },
			close:    pool.Close,
		}, nil
	case DriverSQLite:
		conn, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		products := sqlite.NewProductRepository(conn)
		return &Storage{
			Products: products,
			Catalog:  products,
			Orders:   sqlite.NewOrderRepository(conn),
			Ping:     health.PingFunc(conn.PingContext),
			migrate:  func(ctx context.Context) error { return sqlite.Migrate(ctx, conn) },
			drop:     func(ctx context.Context) error { return sqlite.Drop(ctx, conn) },
			close:    func() { _ = conn.Close() },
		}, nil
	case DriverMemory:
		products := memory.NewProductRepository()
		return &Storage{
			Products: products,
			Catalog:  products,
			Orders:   memory.NewOrderRepository(products),
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Migrate creates the schema if needed.
func (s *Storage) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

// Drop removes every table.
func (s *Storage) Drop(ctx context.Context) error {
	if s.drop == nil {
		return nil
	}
	return s.drop(ctx)
}

// Close releases the connections.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

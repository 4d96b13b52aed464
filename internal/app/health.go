package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/health"
)

const storeCheckTimeout = 2 * time.Second

// newHealth registers the storefront health checks. The service is ready when the
// database answers, order lookups work, and the catalog has something to
// sell. redis may be nil.
func newHealth(driver string, store *Storage, redis health.Pinger) *health.Health {
	h := health.New()
	details := map[string]string{"driver": driver}

	if store.Ping != nil {
		h.Add(health.Check{
			Name:    "storage",
			Kind:    health.Readiness,
			Timeout: storeCheckTimeout,
			Run:     health.PingCheck(driver, store.Ping),
			Details: details,
		})
	}
	h.Add(health.Check{
		Name:    "orders",
		Kind:    health.Readiness,
		Timeout: storeCheckTimeout,
		Run:     orderStoreCheck(store.Orders),
		Details: details,
	})
	h.Add(health.Check{
		Name:      "catalog",
		Kind:      health.Readiness,
		Timeout:   storeCheckTimeout,
		FailAfter: 1,
		Run:       catalogCheck(store.Products),
		Details:   details,
	})
	if redis != nil {
		h.Add(health.Check{
			Name:    "redis",
			Kind:    health.Readiness,
			Run:     health.PingCheck("redis", redis),
			Details: map[string]string{"role": "product-cache"},
		})
	}
	h.Add(health.Check{
		Name: "goroutines",
		Kind: health.Liveness,
		Run:  health.GoroutineCountCheck(10000),
	})
	return h
}

// orderStoreCheck reads an order id that never exists, so a working store
// answers ErrOrderNotFound.
func orderStoreCheck(orders order.Repository) health.CheckFunc {
	return func(ctx context.Context) error {
		_, err := orders.GetByID(ctx, 0)
		if err != nil && !errors.Is(err, order.ErrOrderNotFound) {
			return errors.Wrap(err, "query orders")
		}
		return nil
	}
}

func catalogCheck(products product.Repository) health.CheckFunc {
	return func(ctx context.Context) error {
		list, err := products.List(ctx)
		if err != nil {
			return errors.Wrap(err, "list products")
		}
		if len(list) == 0 {
			return errors.New("catalog is empty")
		}
		return nil
	}
}

package catalog

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/product"
)

// LoadAll loads every location concurrently. Sources keep the order of
// locations so Merge resolves conflicts in favor of the last one.
func LoadAll(ctx context.Context, httpClient *http.Client, locations []string) ([]*Source, error) {
	sources := make([]*Source, len(locations))
	g, ctx := errgroup.WithContext(ctx)
	for i, location := range locations {
		g.Go(func() error {
			s, err := Load(ctx, httpClient, location)
			if err != nil {
				return err
			}
			sources[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

// Store upserts products with at most limit writes in flight.
func Store(ctx context.Context, w product.Writer, products []product.Product, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for _, p := range products {
		g.Go(func() error {
			if err := w.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "upsert product %d", p.ID)
			}
			return nil
		})
	}
	return g.Wait()
}

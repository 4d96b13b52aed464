package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

const listKey = "list"

var _ product.Repository = (*Products)(nil)

// Products caches a product.Repository. Cache failures are logged and the
// call falls through to the wrapped repository; misses for unknown products
// are not cached.
type Products struct {
	next  product.Repository
	store Store
	ttl   time.Duration
}

// NewProducts wraps next with store.
func NewProducts(next product.Repository, store Store, ttl time.Duration) *Products {
	return &Products{next: next, store: store, ttl: ttl}
}

// List returns the catalog, from the cache when possible.
func (c *Products) List(ctx context.Context) ([]product.Product, error) {
	if data, ok := c.lookup(ctx, listKey); ok {
		var products []product.Product
		err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
			p, err := decodeProduct(d)
			products = append(products, p)
			return err
		})
		if err == nil {
			return products, nil
		}
		zctx.From(ctx).Warn("Dropping undecodable cache entry", zap.String("key", listKey), zap.Error(err))
	}

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}

	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			encodeProduct(e, p)
		}
	})
	c.save(ctx, listKey, e.Bytes())
	return products, nil
}

// GetByID returns one product, from the cache when possible.
func (c *Products) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	key := "id:" + strconv.FormatInt(id, 10)
	if data, ok := c.lookup(ctx, key); ok {
		p, err := decodeProduct(jx.DecodeBytes(data))
		if err == nil {
			return &p, nil
		}
		zctx.From(ctx).Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var e jx.Encoder
	encodeProduct(&e, *p)
	c.save(ctx, key, e.Bytes())
	return p, nil
}

func (c *Products) lookup(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, ok
}

func (c *Products) save(ctx context.Context, key string, data []byte) {
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("type", func(e *jx.Encoder) { e.Str(p.Type) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("image", func(e *jx.Encoder) { e.Str(p.Image) })
		e.Field("height", func(e *jx.Encoder) { e.Int(p.Height) })
		e.Field("weight", func(e *jx.Encoder) { e.Int(p.Weight) })
		e.Field("price", func(e *jx.Encoder) { e.Str(p.Price.String()) })
		e.Field("rating", func(e *jx.Encoder) { e.Int(p.Rating) })
		e.Field("in_stock", func(e *jx.Encoder) { e.Bool(p.InStock) })
	})
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "type":
			p.Type, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "height":
			p.Height, err = d.Int()
		case "weight":
			p.Weight, err = d.Int()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "rating":
			p.Rating, err = d.Int()
		case "in_stock":
			p.InStock, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode cached product")
	}
	return p, nil
}

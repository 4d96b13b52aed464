// Package catalog reads product feeds shaped like {"products": [...]} from a
// URL or a local file, optionally gzip-compressed.
package catalog

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultURL is the remote product feed of the course storefront.
const DefaultURL = "https://dimprojetu.uqac.ca/~jgnault/shops/products/"

const maxFeedSize = 64 << 20

// Source is one decoded feed.
type Source struct {
	Location string
	Products []product.Product
	// Invalid holds one error per entry that failed product.Validate.
	Invalid []error
}

// Load reads the feed at location. Locations starting with http:// or
// https:// are fetched with httpClient (nil means http.DefaultClient); other
// locations are files, gunzipped when they end in .gz.
func Load(ctx context.Context, httpClient *http.Client, location string) (*Source, error) {
	rc, err := open(ctx, httpClient, location)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	products, invalid, err := Decode(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", location)
	}
	return &Source{Location: location, Products: products, Invalid: invalid}, nil
}

func open(ctx context.Context, httpClient *http.Client, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return fetch(ctx, httpClient, location)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", location)
	}
	if !strings.HasSuffix(location, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", location)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gzErr
}

func fetch(ctx context.Context, httpClient *http.Client, url string) (io.ReadCloser, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxFeedSize), resp.Body}, nil
}

// Decode parses {"products": [...]}. Entries failing product.Validate are
// returned in invalid instead of products; malformed JSON is an error.
func Decode(r io.Reader) (products []product.Product, invalid []error, err error) {
	d := jx.Decode(r, 32*1024)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		if key != "products" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			p, err := decodeProduct(d)
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				invalid = append(invalid, err)
				return nil
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return products, invalid, nil
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = optStr(d)
		case "type":
			p.Type, err = optStr(d)
		case "description":
			p.Description, err = optStr(d)
		case "image":
			p.Image, err = optStr(d)
		case "height":
			p.Height, err = d.Int()
		case "weight":
			p.Weight, err = d.Int()
		case "rating":
			p.Rating, err = d.Int()
		case "in_stock":
			p.InStock, err = d.Bool()
		case "price":
			var n jx.Num
			if n, err = d.Num(); err == nil {
				p.Price, err = decimal.NewFromString(n.String())
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	return p, err
}

// optStr reads a string that the feed may set to null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

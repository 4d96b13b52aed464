package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

type recordingWriter struct {
	mu      sync.Mutex
	written map[int64]product.Product
	failID  int64
}

func (w *recordingWriter) Upsert(_ context.Context, p product.Product) error {
	if p.ID == w.failID {
		return errors.New("constraint violation")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written == nil {
		w.written = make(map[int64]product.Product)
	}
	w.written[p.ID] = p
	return nil
}

func TestLoadAll_KeepsOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.json")
	second := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(first, []byte(feed), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(`{"products":[]}`), 0o600))

	sources, err := LoadAll(context.Background(), nil, []string{first, second})
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, first, sources[0].Location)
	assert.Equal(t, second, sources[1].Location)
	assert.Len(t, sources[0].Products, 2)
	assert.Empty(t, sources[1].Products)
}

func TestLoadAll_MissingFile(t *testing.T) {
	_, err := LoadAll(context.Background(), nil, []string{filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}

func TestStore(t *testing.T) {
	products := []product.Product{{ID: 1}, {ID: 2}, {ID: 3}}

	w := &recordingWriter{}
	require.NoError(t, Store(context.Background(), w, products, 2))
	assert.Len(t, w.written, 3)

	w = &recordingWriter{failID: 2}
	err := Store(context.Background(), w, products, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert product 2")
}

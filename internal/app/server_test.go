package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/payment"
)

// newTestServer runs the full middleware chain over the memory store and
// the sandbox gateway.
func newTestServer(t *testing.T, rateLimit RateLimitConfig) *httptest.Server {
	t.Helper()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	store, err := OpenStorage(ctx, StorageConfig{Driver: DriverMemory})
	require.NoError(t, err)
	require.NoError(t, seed(ctx, nil, store.Catalog, []string{path}))

	cfg := &Config{
		CORS:      CORSConfig{Origins: []string{"https://shop.example"}},
		RateLimit: rateLimit,
		Payment:   PaymentConfig{Timeout: time.Second},
	}
	h := newAPI(cfg, store, store.Products, payment.NewSandbox(), noop.NewMeterProvider())

	healthSvc := newHealth(DriverMemory, store, nil)
	healthSvc.RunOnce(ctx)
	healthSvc.SetReady(true)

	srv := httptest.NewServer(newHandler(ctx, zaptest.NewLogger(t), cfg, h, healthSvc))
	t.Cleanup(srv.Close)
	return srv
}

func limits(general, orderUpdate int) RateLimitConfig {
	return RateLimitConfig{Max: general, OrderUpdateMax: orderUpdate, Window: time.Minute}
}

func send(t *testing.T, srv *httptest.Server, method, path, body string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func TestServer_HealthEndpoints(t *testing.T) {
	srv := newTestServer(t, limits(100, 100))

	resp, body := send(t, srv, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = send(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Contains(t, checks, "orders")
	assert.Contains(t, checks, "catalog")
	assert.Equal(t, "memory", checks["orders"].(map[string]any)["driver"])
}

func TestServer_RequestID(t *testing.T) {
	srv := newTestServer(t, limits(100, 100))

	resp, _ := send(t, srv, http.MethodGet, "/", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = send(t, srv, http.MethodGet, "/", "", http.Header{"X-Request-Id": {"trace-me"}})
	assert.Equal(t, "trace-me", resp.Header.Get("X-Request-ID"))
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(t, limits(100, 100))

	resp, _ := send(t, srv, http.MethodOptions, "/order", "", http.Header{
		"Origin":                        {"https://shop.example"},
		"Access-Control-Request-Method": {http.MethodPost},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = send(t, srv, http.MethodPost, "/order", `{"product":{"id":1,"quantity":1}}`, http.Header{
		"Origin": {"https://shop.example"},
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Location")
}

func TestServer_RateLimit(t *testing.T) {
	srv := newTestServer(t, limits(2, 0))

	for range 2 {
		resp, _ := send(t, srv, http.MethodGet, "/", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}
	resp, body := send(t, srv, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate-limited", body["reason"])
}

func TestServer_OrderUpdateLimit(t *testing.T) {
	srv := newTestServer(t, limits(100, 1))

	resp, _ := send(t, srv, http.MethodPost, "/order", `{"product":{"id":1,"quantity":1}}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = send(t, srv, http.MethodPut, "/order/1", `{"credit_card":{}}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "order-update", resp.Header.Get("X-RateLimit-Policy"))

	resp, body := send(t, srv, http.MethodPut, "/order/1", `{"credit_card":{}}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate-limited", body["reason"])

	resp, _ = send(t, srv, http.MethodGet, "/order/1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "default", resp.Header.Get("X-RateLimit-Policy"))
}

func TestServer_OrderFlow(t *testing.T) {
	srv := newTestServer(t, limits(100, 100))

	_, body := send(t, srv, http.MethodGet, "/", "", nil)
	require.Len(t, body["products"], 2)

	resp, _ := send(t, srv, http.MethodPost, "/order", `{"product":{"id":1,"quantity":2}}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.Equal(t, "/order/1", location)

	resp, body = send(t, srv, http.MethodPut, location, `{"order":{"email":"jgnault@uqac.ca",
		"shipping_information":{"country":"Canada","address":"201, rue Président-Kennedy",
		"postal_code":"G7X 3Y7","city":"Chicoutimi","province":"QC"}}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = send(t, srv, http.MethodPut, location, `{"credit_card":{"name":"John Doe",
		"number":"4242 4242 4242 4242","expiration_year":2030,"cvv":"123","expiration_month":9}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	_, body = send(t, srv, http.MethodGet, location, "", nil)
	o := body["order"].(map[string]any)
	assert.Equal(t, true, o["paid"])
	assert.Equal(t, 56.2, o["total_price"])
	assert.Equal(t, float64(10), o["shipping_price"])
	assert.Equal(t, 66.2, o["transaction"].(map[string]any)["amount_charged"])
}

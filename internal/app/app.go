// Package app wires the storefront API server.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/api"
	"github.com/xenking/storefront/internal/cache"
	"github.com/xenking/storefront/internal/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/payment"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	store, err := OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	outbound := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}
	if len(cfg.Storage.Seed) > 0 {
		if err := seed(zctx.Base(ctx, lg), outbound, store.Catalog, cfg.Storage.Seed); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
	}

	var (
		listing product.Repository = store.Products
		redis   health.Pinger
	)
	if cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedis(cfg.Cache.RedisAddr, serviceName)
		defer func() { _ = rc.Close() }()
		listing = cache.NewProducts(store.Products, rc, cfg.Cache.TTL)
		redis = rc
	}
	healthSvc := newHealth(cfg.Storage.Driver, store, redis)

	var gateway order.Gateway
	if cfg.Payment.Sandbox {
		lg.Warn("Using sandbox payment gateway")
		gateway = payment.NewSandbox(cfg.Payment.DeclineCards...)
	} else {
		gateway = payment.NewClient(cfg.Payment.URL, outbound)
	}
	h := newAPI(cfg, store, listing, gateway, m.MeterProvider())

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	handler := newHandler(ctx, lg, cfg, h, healthSvc)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Leaves room for a payment charge.
		WriteTimeout:   cfg.Payment.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: otelhttp.NewHandler(handler, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newAPI builds the API handler. Only the product listing reads through
// listing, which may be cached; order creation and pricing read the store.
func newAPI(cfg *Config, store *Storage, listing product.Repository, gateway order.Gateway, mp metric.MeterProvider) *api.Handler {
	orders := order.NewService(store.Products, store.Orders, gateway,
		order.WithChargeTimeout(cfg.Payment.Timeout),
		order.WithMeterProvider(mp),
	)
	return api.NewHandler(api.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL}, listing, orders)
}

// newHandler mounts the health endpoints next to the API and applies the
// middleware chain, outermost first.
func newHandler(ctx context.Context, lg *zap.Logger, cfg *Config, h *api.Handler, healthSvc *health.Health) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Router())

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.LogRequests(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{"Location", httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Rules: []httpmiddleware.RateRule{
				{
					Name:   "order-update",
					Max:    cfg.RateLimit.OrderUpdateMax,
					Window: cfg.RateLimit.Window,
					Match:  isOrderUpdate,
					Key:    clientAndPath,
				},
				{Name: "default", Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window},
			},
		}),
	)
}

// isOrderUpdate matches PUT /order/{id}, where payment attempts happen.
func isOrderUpdate(r *http.Request) bool {
	return r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/order/")
}

func clientAndPath(r *http.Request) string {
	return httpmiddleware.ClientIP(r) + " " + r.URL.Path
}

// seed loads the catalog feeds into w.
func seed(ctx context.Context, httpClient *http.Client, w product.Writer, locations []string) error {
	lg := zctx.From(ctx)

	sources, err := catalog.LoadAll(ctx, httpClient, locations)
	if err != nil {
		return err
	}
	for _, s := range sources {
		for _, err := range s.Invalid {
			lg.Warn("Skipping invalid product", zap.String("source", s.Location), zap.Error(err))
		}
	}
	products, conflicts := catalog.Merge(sources)
	for _, c := range conflicts {
		lg.Warn("Product defined twice, last source wins",
			zap.Int64("id", c.ID),
			zap.Strings("sources", c.Locations),
		)
	}
	if err := catalog.Store(ctx, w, products, 8); err != nil {
		return err
	}
	lg.Info("Catalog seeded", zap.Int("products", len(products)))
	return nil
}

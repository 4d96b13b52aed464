// Package api is the HTTP surface of the storefront: product listing and the
// order endpoints, routed with chi and encoded with jx.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to product image names in responses.
	// When empty, images are returned as stored.
	ImageBaseURL string
}

// Handler serves the storefront endpoints.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, products product.Repository, orders *order.Service) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Router returns the routes:
//
//	GET  /            product catalog
//	POST /order       create an order
//	GET  /order/{id}  read an order
//	PUT  /order/{id}  attach client information or a credit card
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not-found", "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method-not-allowed", "Method Not Allowed")
	})

	r.Get("/", h.ListProducts)
	r.Post("/order", h.CreateOrder)
	r.Get("/order/{id}", h.GetOrder)
	r.Put("/order/{id}", h.UpdateOrder)
	return r
}

package api

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts writes {"products":[...]} with every catalog entry.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("products", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range products {
					h.encodeProduct(e, p)
				}
			})
		})
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("type", func(e *jx.Encoder) { e.Str(p.Type) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("image", func(e *jx.Encoder) { e.Str(h.imageBaseURL + p.Image) })
		e.Field("height", func(e *jx.Encoder) { e.Int(p.Height) })
		e.Field("weight", func(e *jx.Encoder) { e.Int(p.Weight) })
		e.Field("price", func(e *jx.Encoder) { e.Num(jx.Num(p.Price.String())) })
		e.Field("rating", func(e *jx.Encoder) { e.Int(p.Rating) })
		e.Field("in_stock", func(e *jx.Encoder) { e.Bool(p.InStock) })
	})
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

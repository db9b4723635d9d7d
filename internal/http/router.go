package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// NewRouter wires the cart API. Every request gets a server span.
func NewRouter(h *CartHandler, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	r.Use(middleware.Compress(5))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/cart", func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{item_id}", h.UpdateQuantity)
		r.Delete("/items/{item_id}", h.RemoveItem)
		r.Post("/discounts", h.ApplyDiscount)
		r.Delete("/discounts/{code}", h.RemoveDiscount)
		r.Put("/shipping", h.SetShipping)
		r.Post("/open", h.OpenCart)
		r.Post("/close", h.CloseCart)
		r.Post("/toggle", h.ToggleCart)
		r.Post("/checkout", h.BeginCheckout)
	})

	return otelhttp.NewHandler(r, "storefront-cart",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/catalog"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/service"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/health"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/middleware"
)

// NewRouter creates a chi router with all commerce service routes registered.
func NewRouter(
	cartService *service.CartService,
	checkoutService *service.CheckoutService,
	catalogClient *catalog.Client,
	healthHandler *health.Handler,
	logger *slog.Logger,
	pprofCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("commerce"))
	r.Use(middleware.Tracing("commerce"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, pprofCIDRs, logger)

	cartHandler := NewCartHandler(cartService, logger)
	checkoutHandler := NewCheckoutHandler(checkoutService, logger)
	catalogHandler := NewCatalogHandler(catalogClient, logger)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(UserIDFromHeader)

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{productID}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{productID}", cartHandler.RemoveItem)
		r.Get("/items/{productID}/quantity", cartHandler.GetItemQuantity)
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(UserIDFromHeader)

		r.Post("/", checkoutHandler.Begin)
		r.Get("/{id}", checkoutHandler.GetCheckout)
		r.Delete("/{id}", checkoutHandler.Abandon)

		r.Put("/{id}/shipping-address", checkoutHandler.SetShippingAddress)
		r.Put("/{id}/billing-address", checkoutHandler.SetBillingAddress)
		r.Put("/{id}/payment-method", checkoutHandler.SetPaymentMethod)
		r.Put("/{id}/notes", checkoutHandler.SetNotes)

		r.Post("/{id}/next", checkoutHandler.Next)
		r.Post("/{id}/back", checkoutHandler.Back)
		r.Get("/{id}/quote", checkoutHandler.GetQuote)
		r.Post("/{id}/place-order", checkoutHandler.PlaceOrder)
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", catalogHandler.Search)
		r.Get("/categories", catalogHandler.Categories)
	})

	return r
}

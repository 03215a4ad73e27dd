package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/catalog"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/httputil"
)

// CatalogHandler proxies read-only catalog queries so storefront clients
// talk to one service.
type CatalogHandler struct {
	client *catalog.Client
	logger *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(client *catalog.Client, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		client: client,
		logger: logger,
	}
}

// Search handles GET /api/v1/products
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := catalog.SearchFilter{
		Query:      q.Get("query"),
		Category:   q.Get("category"),
		SupplierID: q.Get("supplier_id"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}
	filter.MinPrice, _ = strconv.ParseInt(q.Get("min_price"), 10, 64)
	filter.MaxPrice, _ = strconv.ParseInt(q.Get("max_price"), 10, 64)
	filter.MinQuantity, _ = strconv.Atoi(q.Get("min_quantity"))
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if v := q.Get("is_active"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.IsActive = &b
		}
	}
	if v := q.Get("is_approved"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.IsApproved = &b
		}
	}

	result, err := h.client.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Categories handles GET /api/v1/products/categories
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.client.Categories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"categories": categories}})
}

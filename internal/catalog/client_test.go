package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	doer := httpclient.New(httpclient.Config{Timeout: 2 * time.Second})
	return NewClient(doer, srv.URL, testLogger())
}

func TestGetProduct(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products/p1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.Product{
			ID:                "p1",
			Name:              "Rolled Oats 25lb",
			Category:          "grains",
			PricePerUnit:      4599,
			AvailableQuantity: 40,
			IsActive:          true,
			IsApproved:        true,
		})
	})

	product, err := client.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Rolled Oats 25lb", product.Name)
	assert.Equal(t, int64(4599), product.PricePerUnit)
	assert.True(t, product.Purchasable())
}

func TestGetProduct_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "product not found"},
		})
	})

	_, err := client.GetProduct(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSearch_BuildsQuery(t *testing.T) {
	var gotQuery map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResult{
			Products: []domain.Product{{ID: "p1", Name: "Black Beans 50lb"}},
			Total:    1,
			Page:     2,
			PageSize: 20,
		})
	})

	active := true
	approved := false
	result, err := client.Search(context.Background(), SearchFilter{
		Query:       "beans",
		Category:    "legumes",
		MinPrice:    1000,
		MaxPrice:    20000,
		MinQuantity: 5,
		IsActive:    &active,
		IsApproved:  &approved,
		SortBy:      SortByPrice,
		SortOrder:   SortOrderDesc,
		Page:        2,
		PageSize:    20,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"beans"}, gotQuery["query"])
	assert.Equal(t, []string{"legumes"}, gotQuery["category"])
	assert.Equal(t, []string{"1000"}, gotQuery["min_price"])
	assert.Equal(t, []string{"20000"}, gotQuery["max_price"])
	assert.Equal(t, []string{"5"}, gotQuery["min_quantity"])
	assert.Equal(t, []string{"true"}, gotQuery["is_active"])
	assert.Equal(t, []string{"false"}, gotQuery["is_approved"])
	assert.Equal(t, []string{"price_per_unit"}, gotQuery["sort_by"])
	assert.Equal(t, []string{"desc"}, gotQuery["sort_order"])
	assert.Equal(t, []string{"2"}, gotQuery["page"])

	require.Len(t, result.Products, 1)
	assert.Equal(t, 1, result.Total)
}

func TestSearch_EmptyFilterOmitsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResult{Products: []domain.Product{}})
	})

	_, err := client.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
}

func TestCircuitOpenFallback_NamesCatalogService(t *testing.T) {
	resp, err := CircuitOpenFallback(context.Background(), assert.AnError)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Contains(t, err.Error(), "catalog service")
	assert.NotContains(t, err.Error(), "order service")
}

func TestCategories(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/categories", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]Category{
			"categories": {
				{Name: "Grains", Value: "grains", ProductCount: 42},
				{Name: "Legumes", Value: "legumes", ProductCount: 17},
			},
		})
	})

	categories, err := client.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "grains", categories[0].Value)
	assert.Equal(t, 42, categories[0].ProductCount)
	assert.Equal(t, "Legumes", categories[1].Name)
}

func TestCategories_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Categories(context.Background())
	require.Error(t, err)
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/httpclient"
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback short-circuits catalog calls while the catalog
// service breaker is open.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("catalog service is temporarily unavailable, please retry after 30 seconds")
}

// SortBy values the catalog accepts.
const (
	SortByName      = "name"
	SortByPrice     = "price_per_unit"
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByAvailable = "available_quantity"
	SortByCategory  = "category"
	SortOrderAsc    = "asc"
	SortOrderDesc   = "desc"
)

// SearchFilter narrows a product search. Zero values are omitted from
// the query; prices are in cents.
type SearchFilter struct {
	Query       string
	Category    string
	SupplierID  string
	MinPrice    int64
	MaxPrice    int64
	MinQuantity int
	IsActive    *bool
	IsApproved  *bool
	SortBy      string
	SortOrder   string
	Page        int
	PageSize    int
}

// SearchResult is one page of matching products.
type SearchResult struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// Client reads product data from the catalog service.
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a catalog client against the given base URL.
func NewClient(httpClient HTTPDoer, baseURL string, logger *slog.Logger) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, logger: logger}
}

// GetProduct fetches a single product by ID.
func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/products/"+url.PathEscape(productID), nil)
	if err != nil {
		return nil, fmt.Errorf("create product request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	var product domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product response: %w", err)
	}
	return &product, nil
}

// Search queries the catalog with the given filter.
func (c *Client) Search(ctx context.Context, filter SearchFilter) (*SearchResult, error) {
	q := url.Values{}
	if filter.Query != "" {
		q.Set("query", filter.Query)
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.SupplierID != "" {
		q.Set("supplier_id", filter.SupplierID)
	}
	if filter.MinPrice > 0 {
		q.Set("min_price", strconv.FormatInt(filter.MinPrice, 10))
	}
	if filter.MaxPrice > 0 {
		q.Set("max_price", strconv.FormatInt(filter.MaxPrice, 10))
	}
	if filter.MinQuantity > 0 {
		q.Set("min_quantity", strconv.Itoa(filter.MinQuantity))
	}
	if filter.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*filter.IsActive))
	}
	if filter.IsApproved != nil {
		q.Set("is_approved", strconv.FormatBool(*filter.IsApproved))
	}
	if filter.SortBy != "" {
		q.Set("sort_by", filter.SortBy)
	}
	if filter.SortOrder != "" {
		q.Set("sort_order", filter.SortOrder)
	}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(filter.PageSize))
	}

	endpoint := c.baseURL + "/api/products"
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &result, nil
}

// Category is one catalog category with its product count.
type Category struct {
	Name         string `json:"name"`
	Value        string `json:"value"`
	ProductCount int    `json:"product_count"`
}

// Categories lists the catalog's product categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/products/categories", nil)
	if err != nil {
		return nil, fmt.Errorf("create categories request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	var payload struct {
		Categories []Category `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode categories response: %w", err)
	}
	return payload.Categories, nil
}

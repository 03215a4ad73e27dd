package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
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

// singleShotDoer asserts that order creation never replays a request.
type singleShotDoer struct {
	inner *httpclient.Client
	calls atomic.Int32
}

func (d *singleShotDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return d.inner.Do(ctx, req)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *singleShotDoer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	calc := httpclient.New(httpclient.Config{Timeout: 2 * time.Second})
	create := &singleShotDoer{inner: httpclient.New(httpclient.Config{Timeout: 2 * time.Second})}
	return NewClient(calc, create, srv.URL, testLogger()), create
}

func testItems() []domain.LineItem {
	return []domain.LineItem{
		{ProductID: "p1", Name: "Rolled Oats 25lb", Category: "grains", UnitPrice: 4599, Quantity: 2},
	}
}

func testSession() *domain.CheckoutSession {
	cart := domain.NewCart("cart-1", "user-1", "USD", time.Hour)
	cart.AddItem(testItems()[0])
	sess := domain.NewCheckoutSession("cs-1", cart, domain.BuyerRetail, 30*time.Minute)
	sess.ShippingAddress = &domain.Address{
		FirstName: "Ada", LastName: "Okafor", StreetAddress: "14 Mill Rd",
		City: "Portland", State: "OR", PostalCode: "97201", Country: "US",
	}
	sess.UseShippingAsBilling()
	sess.PaymentMethod = domain.PaymentCreditCard
	sess.Quote = &domain.Quote{Calculation: domain.OrderCalculation{TotalAmount: 9934, Currency: "USD"}, Basis: domain.BasisConfirmed, Seq: 1}
	return sess
}

func TestCalculateOrder(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/calculate", r.URL.Path)

		var req struct {
			Items     []orderLine `json:"items"`
			BuyerTier string      `json:"buyer_tier"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wholesale", req.BuyerTier)
		require.Len(t, req.Items, 1)
		assert.Equal(t, "p1", req.Items[0].ProductID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.OrderCalculation{
			Subtotal: 9198, TaxAmount: 736, ShippingCost: 1500, TotalAmount: 11434, Currency: "USD",
		})
	})

	calc, err := client.CalculateOrder(context.Background(), testItems(), domain.BuyerWholesale, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11434), calc.TotalAmount)
	assert.True(t, calc.Consistent())
}

func TestCalculateOrder_ServiceUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "SERVICE_UNAVAILABLE", "message": "pricing temporarily unavailable"},
		})
	})

	_, err := client.CalculateOrder(context.Background(), testItems(), domain.BuyerRetail, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestCreateOrder(t *testing.T) {
	client, doer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders", r.URL.Path)

		var req CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cs-1", req.CheckoutID)
		assert.Equal(t, "credit_card", req.PaymentMethod)
		require.NotNil(t, req.BillingAddress)
		assert.Equal(t, "Portland", req.BillingAddress.City)
		assert.Equal(t, int64(9934), req.TotalAmount)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"order_id": "order-42"})
	})

	orderID, err := client.CreateOrder(context.Background(), NewCreateOrderRequest(testSession()))
	require.NoError(t, err)
	assert.Equal(t, "order-42", orderID)
	assert.Equal(t, int32(1), doer.calls.Load())
}

func TestCreateOrder_ServerErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	client, doer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateOrder(context.Background(), NewCreateOrderRequest(testSession()))
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, int32(1), doer.calls.Load())
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "INSUFFICIENT_STOCK", "message": "Rolled Oats 25lb: 1 available, 2 requested"},
		})
	})

	_, err := client.CreateOrder(context.Background(), NewCreateOrderRequest(testSession()))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

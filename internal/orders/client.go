package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/httpclient"
)

var submissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_submissions_total",
		Help: "Order creation attempts, labeled by outcome.",
	},
	[]string{"outcome"},
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback short-circuits calculation calls while the order
// service breaker is open. The quoter treats the failure like any other
// and falls back to a local estimate.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("order service is temporarily unavailable, please retry after 30 seconds")
}

// Client talks to the order service. Calculation is idempotent and goes
// through the retrying breaker-wrapped client; order creation is not
// idempotent and uses a client that never retries, so a timed-out
// submission can't silently place a second order.
type Client struct {
	calcClient   HTTPDoer
	createClient HTTPDoer
	baseURL      string
	logger       *slog.Logger
}

// NewClient creates an order service client. calcClient should retry;
// createClient must not.
func NewClient(calcClient, createClient HTTPDoer, baseURL string, logger *slog.Logger) *Client {
	return &Client{calcClient: calcClient, createClient: createClient, baseURL: baseURL, logger: logger}
}

type orderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func toOrderLines(items []domain.LineItem) []orderLine {
	lines := make([]orderLine, len(items))
	for i, item := range items {
		lines[i] = orderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Category:  item.Category,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return lines
}

// CalculateOrder asks the order service to price the given lines.
func (c *Client) CalculateOrder(ctx context.Context, items []domain.LineItem, tier domain.BuyerTier, shipTo *domain.Address) (domain.OrderCalculation, error) {
	payload := struct {
		Items           []orderLine     `json:"items"`
		BuyerTier       string          `json:"buyer_tier"`
		ShippingAddress *domain.Address `json:"shipping_address,omitempty"`
	}{
		Items:           toOrderLines(items),
		BuyerTier:       string(tier),
		ShippingAddress: shipTo,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.OrderCalculation{}, fmt.Errorf("marshal calculate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders/calculate", bytes.NewReader(body))
	if err != nil {
		return domain.OrderCalculation{}, fmt.Errorf("create calculate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.calcClient.Do(ctx, req)
	if err != nil {
		return domain.OrderCalculation{}, fmt.Errorf("call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.OrderCalculation{}, httpclient.ParseResponseError(resp, "order")
	}

	var calc domain.OrderCalculation
	if err := json.NewDecoder(resp.Body).Decode(&calc); err != nil {
		return domain.OrderCalculation{}, fmt.Errorf("decode calculate response: %w", err)
	}
	return calc, nil
}

// CreateOrderRequest carries everything the order service needs to place
// an order from a confirmed checkout session.
type CreateOrderRequest struct {
	CheckoutID      string          `json:"checkout_id"`
	UserID          string          `json:"user_id"`
	Items           []orderLine     `json:"items"`
	ShippingAddress *domain.Address `json:"shipping_address"`
	BillingAddress  *domain.Address `json:"billing_address"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           string          `json:"notes,omitempty"`
	Currency        string          `json:"currency"`
	TotalAmount     int64           `json:"total_amount"`
}

// NewCreateOrderRequest builds a creation request from the session.
func NewCreateOrderRequest(sess *domain.CheckoutSession) CreateOrderRequest {
	var total int64
	if sess.Quote != nil {
		total = sess.Quote.Calculation.TotalAmount
	}
	return CreateOrderRequest{
		CheckoutID:      sess.ID,
		UserID:          sess.UserID,
		Items:           toOrderLines(sess.Items),
		ShippingAddress: sess.ShippingAddress,
		BillingAddress:  sess.EffectiveBillingAddress(),
		PaymentMethod:   sess.PaymentMethod,
		Notes:           sess.Notes,
		Currency:        sess.Currency,
		TotalAmount:     total,
	}
}

// CreateOrder submits the order and returns the new order's ID. The call
// is made exactly once; any failure surfaces to the caller for an explicit
// buyer-driven retry.
func (c *Client) CreateOrder(ctx context.Context, orderReq CreateOrderRequest) (string, error) {
	body, err := json.Marshal(orderReq)
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.createClient.Do(ctx, req)
	if err != nil {
		submissionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return "", httpclient.ParseResponseError(resp, "order")
	}

	var orderResp struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		submissionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("decode order response: %w", err)
	}
	submissionsTotal.WithLabelValues("created").Inc()

	c.logger.InfoContext(ctx, "order created",
		slog.String("checkout_id", orderReq.CheckoutID),
		slog.String("order_id", orderResp.OrderID),
	)
	return orderResp.OrderID, nil
}

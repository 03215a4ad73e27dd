package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	pkgkafka "github.com/lizTheDeveloper/BulkFoodHub/pkg/kafka"
)

// Kafka topics for cart and checkout domain events.
var (
	TopicCartUpdated       = pkgkafka.Topic(AggregateTypeCart, "updated")
	TopicCartCleared       = pkgkafka.Topic(AggregateTypeCart, "cleared")
	TopicCheckoutStarted   = pkgkafka.Topic(AggregateTypeCheckout, "started")
	TopicCheckoutStep      = pkgkafka.Topic(AggregateTypeCheckout, "step_changed")
	TopicCheckoutCompleted = pkgkafka.Topic(AggregateTypeCheckout, "completed")
)

// Aggregate type constants.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout"
)

// Source identifier for events originating from this service.
const SourceCommerceService = "commerce-service"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID     string         `json:"user_id"`
	Items      []LineItemData `json:"items"`
	TotalItems int            `json:"total_items"`
	TotalPrice int64          `json:"total_price"`
	Currency   string         `json:"currency"`
}

// LineItemData is the line payload within cart and checkout events.
type LineItemData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	UserID string `json:"user_id"`
}

// CheckoutStartedData is the payload for a checkout.started event.
type CheckoutStartedData struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
	CartID     string `json:"cart_id"`
	ItemCount  int    `json:"item_count"`
	Subtotal   int64  `json:"subtotal"`
	Currency   string `json:"currency"`
}

// CheckoutStepData is the payload for a checkout.step_changed event.
type CheckoutStepData struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
	FromStep   string `json:"from_step"`
	ToStep     string `json:"to_step"`
}

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	CheckoutID  string `json:"checkout_id"`
	UserID      string `json:"user_id"`
	OrderID     string `json:"order_id"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

// Producer publishes cart and checkout domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func toLineItemData(items []domain.LineItem) []LineItemData {
	out := make([]LineItemData, len(items))
	for i, item := range items {
		out[i] = LineItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Category:  item.Category,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		UserID:     cart.UserID,
		Items:      toLineItemData(cart.Items),
		TotalItems: cart.TotalItems,
		TotalPrice: cart.TotalPrice,
		Currency:   cart.Currency,
	}

	event, err := pkgkafka.NewEvent(TopicCartUpdated, cart.UserID, AggregateTypeCart, SourceCommerceService, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("user_id", cart.UserID),
		slog.Int("total_items", cart.TotalItems),
	)

	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, userID string) error {
	data := CartClearedData{UserID: userID}

	event, err := pkgkafka.NewEvent(TopicCartCleared, userID, AggregateTypeCart, SourceCommerceService, data)
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.cleared event",
		slog.String("user_id", userID),
	)

	return nil
}

// PublishCheckoutStarted publishes a checkout.started event.
func (p *Producer) PublishCheckoutStarted(ctx context.Context, session *domain.CheckoutSession) error {
	data := CheckoutStartedData{
		CheckoutID: session.ID,
		UserID:     session.UserID,
		CartID:     session.CartID,
		ItemCount:  len(session.Items),
		Subtotal:   session.Subtotal(),
		Currency:   session.Currency,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutStarted, session.ID, AggregateTypeCheckout, SourceCommerceService, data)
	if err != nil {
		return fmt.Errorf("create checkout.started event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutStarted, event); err != nil {
		return fmt.Errorf("publish checkout.started event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.started event",
		slog.String("checkout_id", session.ID),
		slog.String("user_id", session.UserID),
	)

	return nil
}

// PublishCheckoutStepChanged publishes a checkout.step_changed event.
func (p *Producer) PublishCheckoutStepChanged(ctx context.Context, session *domain.CheckoutSession, from domain.Step) error {
	data := CheckoutStepData{
		CheckoutID: session.ID,
		UserID:     session.UserID,
		FromStep:   string(from),
		ToStep:     string(session.Step),
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutStep, session.ID, AggregateTypeCheckout, SourceCommerceService, data)
	if err != nil {
		return fmt.Errorf("create checkout.step_changed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutStep, event); err != nil {
		return fmt.Errorf("publish checkout.step_changed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.step_changed event",
		slog.String("checkout_id", session.ID),
		slog.String("from_step", string(from)),
		slog.String("to_step", string(session.Step)),
	)

	return nil
}

// PublishCheckoutCompleted publishes a checkout.completed event.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, session *domain.CheckoutSession) error {
	var total int64
	if session.Quote != nil {
		total = session.Quote.Calculation.TotalAmount
	}
	data := CheckoutCompletedData{
		CheckoutID:  session.ID,
		UserID:      session.UserID,
		OrderID:     session.OrderID,
		TotalAmount: total,
		Currency:    session.Currency,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutCompleted, session.ID, AggregateTypeCheckout, SourceCommerceService, data)
	if err != nil {
		return fmt.Errorf("create checkout.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutCompleted, event); err != nil {
		return fmt.Errorf("publish checkout.completed event: %w", err)
	}

	p.logger.InfoContext(ctx, "published checkout.completed event",
		slog.String("checkout_id", session.ID),
		slog.String("order_id", session.OrderID),
	)

	return nil
}

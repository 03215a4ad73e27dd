package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/event"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/repository"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single cart line.
	MaxQuantityPerItem = 1000
	// MaxItemsPerCart is the maximum number of distinct lines allowed in a cart.
	MaxItemsPerCart = 100
)

// CatalogReader reads product data from the catalog service.
type CatalogReader interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

// CheckoutAbandoner cancels a user's active checkout session. The cart
// service calls it when a cart with an open checkout is emptied, since the
// session's snapshot no longer reflects anything the buyer holds.
type CheckoutAbandoner interface {
	AbandonActiveFor(ctx context.Context, userID string) error
}

// AddItemInput holds the parameters for adding a product to the cart.
type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// UpdateQuantityInput holds the parameters for updating a line quantity.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity"`
}

// CartService implements the business logic for cart operations. Product
// details come from the catalog at add time; availability is checked at
// this boundary only, final enforcement happens at order submission.
type CartService struct {
	repo      repository.CartRepository
	catalog   CatalogReader
	checkouts CheckoutAbandoner
	producer  *event.Producer
	logger    *slog.Logger
	cartTTL   time.Duration
}

// NewCartService creates a new cart service. checkouts may be nil when no
// checkout flow runs alongside the cart.
func NewCartService(repo repository.CartRepository, catalog CatalogReader, checkouts CheckoutAbandoner, producer *event.Producer, logger *slog.Logger, cartTTL time.Duration) *CartService {
	return &CartService{
		repo:      repo,
		catalog:   catalog,
		checkouts: checkouts,
		producer:  producer,
		logger:    logger,
		cartTTL:   cartTTL,
	}
}

// GetCart retrieves the cart for a user. If no cart exists, returns an empty cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// GetItemQuantity returns the quantity of a product in the user's cart,
// 0 when the product or the cart itself is absent.
func (s *CartService) GetItemQuantity(ctx context.Context, userID, productID string) (int, error) {
	if userID == "" {
		return 0, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return 0, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get cart: %w", err)
	}

	return cart.ItemQuantity(productID), nil
}

// AddItem adds a product to the user's cart, merging by product ID. The
// product must exist, be purchasable, and have enough stock to cover the
// combined quantity. The unit price is captured on first add; merging more
// of the same product keeps the original price.
// Uses optimistic locking to prevent lost updates on concurrent modifications.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if input.Quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, fmt.Errorf("look up product: %w", err)
	}
	if !product.Purchasable() {
		return nil, apperrors.InvalidInput("product is not available for purchase")
	}

	cart, err := s.getOrCreateCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	expectedVersion := cart.Version

	combined := cart.ItemQuantity(input.ProductID) + input.Quantity
	if combined > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("combined quantity must not exceed %d", MaxQuantityPerItem))
	}
	if combined > product.AvailableQuantity {
		return nil, apperrors.InsufficientStock(product.Name, product.AvailableQuantity, combined)
	}
	if cart.FindItemIndex(input.ProductID) < 0 && len(cart.Items) >= MaxItemsPerCart {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
	}

	cart.AddItem(domain.LineItem{
		ProductID: product.ID,
		Name:      product.Name,
		Category:  product.Category,
		SKU:       product.SKU,
		UnitLabel: product.UnitLabel,
		UnitPrice: product.PricePerUnit,
		Quantity:  input.Quantity,
	})

	cart.ExpiresAt = time.Now().UTC().Add(s.cartTTL)

	if err := s.repo.SaveIfVersion(ctx, cart, expectedVersion); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.publishCartUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", input.Quantity),
	)

	return cart, nil
}

// UpdateItemQuantity replaces the quantity of a cart line. A quantity of
// zero or less removes the line; updating a product that is not in the
// cart leaves the cart unchanged.
// Uses optimistic locking to prevent lost updates on concurrent modifications.
func (s *CartService) UpdateItemQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart for update: %w", err)
	}

	current := cart.ItemQuantity(productID)
	if cart.FindItemIndex(productID) < 0 {
		// no such line, nothing to do
		return cart, nil
	}

	if quantity > current {
		product, err := s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("look up product: %w", err)
		}
		if quantity > product.AvailableQuantity {
			return nil, apperrors.InsufficientStock(product.Name, product.AvailableQuantity, quantity)
		}
	}

	expectedVersion := cart.Version
	cart.SetItemQuantity(productID, quantity)
	cart.ExpiresAt = time.Now().UTC().Add(s.cartTTL)

	if err := s.repo.SaveIfVersion(ctx, cart, expectedVersion); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.publishCartUpdated(ctx, cart)
	if cart.IsEmpty() {
		s.abandonActiveCheckout(ctx, userID)
	}

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)

	return cart, nil
}

// RemoveItem removes a product's line from the cart. Removing a product
// that is not in the cart leaves the cart unchanged.
// Uses optimistic locking to prevent lost updates on concurrent modifications.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart for remove: %w", err)
	}

	if cart.FindItemIndex(productID) < 0 {
		return cart, nil
	}

	expectedVersion := cart.Version
	cart.RemoveItem(productID)
	cart.ExpiresAt = time.Now().UTC().Add(s.cartTTL)

	if err := s.repo.SaveIfVersion(ctx, cart, expectedVersion); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.publishCartUpdated(ctx, cart)
	if cart.IsEmpty() {
		s.abandonActiveCheckout(ctx, userID)
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
	)

	return cart, nil
}

// ClearCart removes all items from the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	s.abandonActiveCheckout(ctx, userID)

	if err := s.producer.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
	)

	return nil
}

// abandonActiveCheckout cancels the user's open checkout after the cart it
// snapshotted was emptied. The cart change already landed, so failures here
// are logged rather than surfaced.
func (s *CartService) abandonActiveCheckout(ctx context.Context, userID string) {
	if s.checkouts == nil {
		return
	}
	if err := s.checkouts.AbandonActiveFor(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to abandon checkout after cart emptied",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// publishCartUpdated emits the event; publish failures are logged, not fatal.
func (s *CartService) publishCartUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", cart.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// getOrCreateCart retrieves the cart for a user, creating an empty one if it does not exist.
func (s *CartService) getOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// newEmptyCart creates a new empty cart for the given user.
func (s *CartService) newEmptyCart(userID string) *domain.Cart {
	return domain.NewCart(uuid.New().String(), userID, "USD", s.cartTTL)
}

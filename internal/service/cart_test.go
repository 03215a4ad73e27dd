package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/event"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
	pkgkafka "github.com/lizTheDeveloper/BulkFoodHub/pkg/kafka"
)

// --- Mock repository ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *mockCartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) error {
	args := m.Called(ctx, cart, expectedVersion)
	if args.Error(0) == nil {
		cart.Version = expectedVersion + 1
	}
	return args.Error(0)
}

func (m *mockCartRepository) Delete(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Mock catalog ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestProducer returns a producer with no reachable broker; publish
// failures are logged and ignored by the services under test.
func newTestProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

type mockCheckoutAbandoner struct {
	mock.Mock
}

func (m *mockCheckoutAbandoner) AbandonActiveFor(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func newTestCartService(repo *mockCartRepository, catalog *mockCatalog) *CartService {
	return NewCartService(repo, catalog, nil, newTestProducer(), newTestLogger(), 7*24*time.Hour)
}

func oatsProduct() *domain.Product {
	return &domain.Product{
		ID:                "prod-1",
		Name:              "Rolled Oats 25lb",
		Category:          "grains",
		SKU:               "OAT-25",
		UnitLabel:         "bag",
		PricePerUnit:      4599,
		AvailableQuantity: 40,
		IsActive:          true,
		IsApproved:        true,
	}
}

func cartWithOats(userID string) *domain.Cart {
	cart := domain.NewCart("cart-123", userID, "USD", 7*24*time.Hour)
	cart.AddItem(domain.LineItem{
		ProductID: "prod-1",
		Name:      "Rolled Oats 25lb",
		Category:  "grains",
		SKU:       "OAT-25",
		UnitPrice: 4599,
		Quantity:  2,
	})
	cart.Version = 3
	return cart
}

// --- GetCart ---

func TestGetCart_Empty(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestCartService(repo, new(mockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(nil, apperrors.NotFound("cart", "user-1"))

	cart, err := svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", cart.UserID)
	assert.True(t, cart.IsEmpty())
	repo.AssertExpectations(t)
}

func TestGetCart_RequiresUserID(t *testing.T) {
	svc := newTestCartService(new(mockCartRepository), new(mockCatalog))

	_, err := svc.GetCart(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- AddItem ---

func TestAddItem_NewProduct(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetProduct", ctx, "prod-1").Return(oatsProduct(), nil)
	repo.On("Get", ctx, "user-1").Return(nil, apperrors.NotFound("cart", "user-1"))
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 0).Return(nil)

	cart, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "prod-1", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(4599), cart.Items[0].UnitPrice)
	assert.Equal(t, "grains", cart.Items[0].Category)
	assert.Equal(t, int64(9198), cart.TotalPrice)
	repo.AssertExpectations(t)
	catalog.AssertExpectations(t)
}

func TestAddItem_MergeKeepsOriginalPrice(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	// catalog price moved since the first add
	repriced := oatsProduct()
	repriced.PricePerUnit = 5299

	catalog.On("GetProduct", ctx, "prod-1").Return(repriced, nil)
	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).Return(nil)

	cart, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "prod-1", Quantity: 3})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, int64(4599), cart.Items[0].UnitPrice)
	repo.AssertExpectations(t)
}

func TestAddItem_InsufficientStock(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	limited := oatsProduct()
	limited.AvailableQuantity = 4

	catalog.On("GetProduct", ctx, "prod-1").Return(limited, nil)
	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)

	// 2 already in the cart + 3 requested > 4 available
	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "prod-1", Quantity: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddItem_UnpurchasableProduct(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	inactive := oatsProduct()
	inactive.IsActive = false

	catalog.On("GetProduct", ctx, "prod-1").Return(inactive, nil)

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "prod-1", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAddItem_UnknownProduct(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetProduct", ctx, "ghost").Return(nil, apperrors.NotFound("product", "ghost"))

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "ghost", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	svc := newTestCartService(new(mockCartRepository), new(mockCatalog))

	_, err := svc.AddItem(context.Background(), "user-1", AddItemInput{ProductID: "prod-1", Quantity: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.AddItem(context.Background(), "user-1", AddItemInput{ProductID: "prod-1", Quantity: -2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAddItem_ConcurrentModification(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetProduct", ctx, "prod-1").Return(oatsProduct(), nil)
	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).
		Return(apperrors.Conflict("cart was modified by a concurrent request"))

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "prod-1", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

// --- UpdateItemQuantity ---

func TestUpdateItemQuantity(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	catalog.On("GetProduct", ctx, "prod-1").Return(oatsProduct(), nil)
	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).Return(nil)

	cart, err := svc.UpdateItemQuantity(ctx, "user-1", "prod-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, cart.ItemQuantity("prod-1"))
	assert.Equal(t, int64(7*4599), cart.TotalPrice)
}

func TestUpdateItemQuantity_ZeroRemovesLine(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).Return(nil)

	cart, err := svc.UpdateItemQuantity(ctx, "user-1", "prod-1", 0)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	// no stock check needed when shrinking
	catalog.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
}

func TestUpdateItemQuantity_NegativeRemovesLine(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).Return(nil)

	cart, err := svc.UpdateItemQuantity(ctx, "user-1", "prod-1", -1)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestUpdateItemQuantity_AbsentProductIsNoOp(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)

	cart, err := svc.UpdateItemQuantity(ctx, "user-1", "ghost", 5)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.ItemQuantity("prod-1"))
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateItemQuantity_IncreaseChecksStock(t *testing.T) {
	repo := new(mockCartRepository)
	catalog := new(mockCatalog)
	svc := newTestCartService(repo, catalog)
	ctx := context.Background()

	limited := oatsProduct()
	limited.AvailableQuantity = 4

	catalog.On("GetProduct", ctx, "prod-1").Return(limited, nil)
	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)

	_, err := svc.UpdateItemQuantity(ctx, "user-1", "prod-1", 10)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
}

// --- RemoveItem ---

func TestRemoveItem(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestCartService(repo, new(mockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).Return(nil)

	cart, err := svc.RemoveItem(ctx, "user-1", "prod-1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestRemoveItem_AbsentProductIsNoOp(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestCartService(repo, new(mockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)

	cart, err := svc.RemoveItem(ctx, "user-1", "ghost")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
}

// --- ClearCart ---

func TestClearCart(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestCartService(repo, new(mockCatalog))
	ctx := context.Background()

	repo.On("Delete", ctx, "user-1").Return(nil)

	assert.NoError(t, svc.ClearCart(ctx, "user-1"))
	repo.AssertExpectations(t)
}

func TestClearCart_AbandonsActiveCheckout(t *testing.T) {
	repo := new(mockCartRepository)
	checkouts := new(mockCheckoutAbandoner)
	svc := NewCartService(repo, new(mockCatalog), checkouts, newTestProducer(), newTestLogger(), 7*24*time.Hour)
	ctx := context.Background()

	repo.On("Delete", ctx, "user-1").Return(nil)
	checkouts.On("AbandonActiveFor", ctx, "user-1").Return(nil)

	require.NoError(t, svc.ClearCart(ctx, "user-1"))
	checkouts.AssertExpectations(t)
}

func TestRemoveItem_LastLineAbandonsActiveCheckout(t *testing.T) {
	repo := new(mockCartRepository)
	checkouts := new(mockCheckoutAbandoner)
	svc := NewCartService(repo, new(mockCatalog), checkouts, newTestProducer(), newTestLogger(), 7*24*time.Hour)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 3).Return(nil)
	checkouts.On("AbandonActiveFor", ctx, "user-1").Return(nil)

	cart, err := svc.RemoveItem(ctx, "user-1", "prod-1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	checkouts.AssertExpectations(t)
}

// --- GetItemQuantity ---

func TestGetItemQuantity(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestCartService(repo, new(mockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithOats("user-1"), nil)

	qty, err := svc.GetItemQuantity(ctx, "user-1", "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
}

func TestGetItemQuantity_NoCart(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestCartService(repo, new(mockCatalog))
	ctx := context.Background()

	repo.On("Get", ctx, "user-9").Return(nil, apperrors.NotFound("cart", "user-9"))

	qty, err := svc.GetItemQuantity(ctx, "user-9", "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

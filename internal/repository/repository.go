package repository

import (
	"context"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
)

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Get retrieves a cart by its user ID.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save persists a cart, overwriting any existing cart for the user.
	Save(ctx context.Context, cart *domain.Cart) error

	// SaveIfVersion persists a cart only if the stored cart still has the
	// given version, bumping cart.Version on success. Returns a conflict
	// error when another writer got there first.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) error

	// Delete removes a cart from the store by the user ID.
	Delete(ctx context.Context, userID string) error
}

// CheckoutRepository defines the interface for checkout session persistence.
type CheckoutRepository interface {
	// Create stores a new checkout session.
	Create(ctx context.Context, session *domain.CheckoutSession) error

	// GetByID retrieves a checkout session by its ID.
	GetByID(ctx context.Context, sessionID string) (*domain.CheckoutSession, error)

	// GetActiveByUserID retrieves the user's newest unconfirmed,
	// unexpired session, if any.
	GetActiveByUserID(ctx context.Context, userID string) (*domain.CheckoutSession, error)

	// UpdateIfVersion persists the session only if the stored row still
	// has the given version, bumping session.Version on success. Returns
	// a conflict error when another writer got there first.
	UpdateIfVersion(ctx context.Context, session *domain.CheckoutSession, expectedVersion int) error

	// Delete removes a checkout session.
	Delete(ctx context.Context, sessionID string) error
}

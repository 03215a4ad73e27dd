package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/database"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
)

// DBTX is the subset of pgxpool.Pool the repository needs. pgxmock's
// pool satisfies it too, which is what the tests use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CheckoutRepository implements repository.CheckoutRepository using PostgreSQL.
type CheckoutRepository struct {
	db DBTX
}

// NewCheckoutRepository creates a new PostgreSQL-backed checkout repository.
func NewCheckoutRepository(db DBTX) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

const sessionColumns = `id, user_id, cart_id, step, items, currency, buyer_tier,
	shipping_address, billing_address, billing_same_as_shipping,
	payment_method, notes, quote, processing, order_id, version,
	expires_at, created_at, updated_at`

// Create inserts a new checkout session.
func (r *CheckoutRepository) Create(ctx context.Context, session *domain.CheckoutSession) error {
	itemsJSON, shippingJSON, billingJSON, quoteJSON, err := marshalFields(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO checkout_sessions (
			id, user_id, cart_id, step, items, currency, buyer_tier,
			shipping_address, billing_address, billing_same_as_shipping,
			payment_method, notes, quote, processing, order_id, version,
			expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19
		)`

	ctx, end := database.TraceQuery(ctx, "CreateSession", query)
	_, err = r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.CartID,
		session.Step,
		itemsJSON,
		session.Currency,
		session.BuyerTier,
		shippingJSON,
		billingJSON,
		session.BillingSameAsShipping,
		nullableString(session.PaymentMethod),
		nullableString(session.Notes),
		quoteJSON,
		session.Processing,
		nullableString(session.OrderID),
		session.Version,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}

	return nil
}

// GetByID retrieves a checkout session by its ID.
func (r *CheckoutRepository) GetByID(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM checkout_sessions
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetSession", query)
	session, err := r.scanSession(r.db.QueryRow(ctx, query, sessionID))
	end(err)
	return session, err
}

// GetActiveByUserID retrieves the user's newest unconfirmed, unexpired session.
func (r *CheckoutRepository) GetActiveByUserID(ctx context.Context, userID string) (*domain.CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM checkout_sessions
		WHERE user_id = $1 AND step != 'confirmed' AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetActiveSession", query)
	session, err := r.scanSession(r.db.QueryRow(ctx, query, userID))
	end(err)
	return session, err
}

// UpdateIfVersion persists the session only when the stored row still has
// expectedVersion. On success the stored and in-memory versions are bumped.
func (r *CheckoutRepository) UpdateIfVersion(ctx context.Context, session *domain.CheckoutSession, expectedVersion int) error {
	itemsJSON, shippingJSON, billingJSON, quoteJSON, err := marshalFields(session)
	if err != nil {
		return err
	}

	session.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE checkout_sessions
		SET step = $1, items = $2, currency = $3, buyer_tier = $4,
			shipping_address = $5, billing_address = $6, billing_same_as_shipping = $7,
			payment_method = $8, notes = $9, quote = $10, processing = $11,
			order_id = $12, version = version + 1,
			expires_at = $13, updated_at = $14
		WHERE id = $15 AND version = $16`

	ctx, end := database.TraceQuery(ctx, "UpdateSession", query)
	ct, err := r.db.Exec(ctx, query,
		session.Step,
		itemsJSON,
		session.Currency,
		session.BuyerTier,
		shippingJSON,
		billingJSON,
		session.BillingSameAsShipping,
		nullableString(session.PaymentMethod),
		nullableString(session.Notes),
		quoteJSON,
		session.Processing,
		nullableString(session.OrderID),
		session.ExpiresAt,
		session.UpdatedAt,
		session.ID,
		expectedVersion,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		// Distinguish a vanished row from a concurrent writer.
		var v int
		err := r.db.QueryRow(ctx, `SELECT version FROM checkout_sessions WHERE id = $1`, session.ID).Scan(&v)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("checkout_session", session.ID)
		}
		if err != nil {
			return fmt.Errorf("read checkout session version: %w", err)
		}
		return apperrors.Conflict("checkout session was modified by a concurrent request")
	}

	session.Version = expectedVersion + 1
	return nil
}

// Delete removes a checkout session.
func (r *CheckoutRepository) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM checkout_sessions WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, "DeleteSession", query)
	ct, err := r.db.Exec(ctx, query, sessionID)
	end(err)
	if err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("checkout_session", sessionID)
	}
	return nil
}

// scanSession scans a single checkout session row.
func (r *CheckoutRepository) scanSession(row pgx.Row) (*domain.CheckoutSession, error) {
	var (
		session       domain.CheckoutSession
		itemsJSON     []byte
		shippingJSON  []byte
		billingJSON   []byte
		quoteJSON     []byte
		paymentMethod *string
		notes         *string
		orderID       *string
	)

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.CartID,
		&session.Step,
		&itemsJSON,
		&session.Currency,
		&session.BuyerTier,
		&shippingJSON,
		&billingJSON,
		&session.BillingSameAsShipping,
		&paymentMethod,
		&notes,
		&quoteJSON,
		&session.Processing,
		&orderID,
		&session.Version,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan checkout session: %w", err)
	}

	if err := unmarshalFields(&session, itemsJSON, shippingJSON, billingJSON, quoteJSON); err != nil {
		return nil, err
	}

	if paymentMethod != nil {
		session.PaymentMethod = *paymentMethod
	}
	if notes != nil {
		session.Notes = *notes
	}
	if orderID != nil {
		session.OrderID = *orderID
	}

	return &session, nil
}

// marshalFields serializes the session's JSON columns.
func marshalFields(session *domain.CheckoutSession) (items, shipping, billing, quote []byte, err error) {
	items, err = json.Marshal(session.Items)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal items: %w", err)
	}
	shipping, err = json.Marshal(session.ShippingAddress)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal shipping address: %w", err)
	}
	billing, err = json.Marshal(session.BillingAddress)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal billing address: %w", err)
	}
	quote, err = json.Marshal(session.Quote)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal quote: %w", err)
	}
	return items, shipping, billing, quote, nil
}

// unmarshalFields deserializes JSON columns onto the session.
func unmarshalFields(session *domain.CheckoutSession, itemsJSON, shippingJSON, billingJSON, quoteJSON []byte) error {
	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &session.Items); err != nil {
			return fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if session.Items == nil {
		session.Items = []domain.LineItem{}
	}

	if shippingJSON != nil && string(shippingJSON) != "null" {
		var addr domain.Address
		if err := json.Unmarshal(shippingJSON, &addr); err != nil {
			return fmt.Errorf("unmarshal shipping address: %w", err)
		}
		session.ShippingAddress = &addr
	}

	if billingJSON != nil && string(billingJSON) != "null" {
		var addr domain.Address
		if err := json.Unmarshal(billingJSON, &addr); err != nil {
			return fmt.Errorf("unmarshal billing address: %w", err)
		}
		session.BillingAddress = &addr
	}

	if quoteJSON != nil && string(quoteJSON) != "null" {
		var quote domain.Quote
		if err := json.Unmarshal(quoteJSON, &quote); err != nil {
			return fmt.Errorf("unmarshal quote: %w", err)
		}
		session.Quote = &quote
	}

	return nil
}

// nullableString returns nil if the string is empty, otherwise a pointer to the string.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

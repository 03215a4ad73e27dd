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
	"github.com/lizTheDeveloper/BulkFoodHub/internal/orders"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/pricing"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/repository"
	apperrors "github.com/lizTheDeveloper/BulkFoodHub/pkg/errors"
)

// OrderSubmitter places orders through the order service.
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (string, error)
}

// BillingInput holds the parameters for setting the billing address.
type BillingInput struct {
	SameAsShipping bool
	Address        *domain.Address
}

// CheckoutService implements the business logic for the checkout flow.
// A session snapshots the cart when it starts; the cart is cleared only
// after the order is confirmed.
type CheckoutService struct {
	repo       repository.CheckoutRepository
	carts      repository.CartRepository
	quoter     *pricing.Quoter
	orders     OrderSubmitter
	producer   *event.Producer
	logger     *slog.Logger
	sessionTTL time.Duration
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	repo repository.CheckoutRepository,
	carts repository.CartRepository,
	quoter *pricing.Quoter,
	orderClient OrderSubmitter,
	producer *event.Producer,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		repo:       repo,
		carts:      carts,
		quoter:     quoter,
		orders:     orderClient,
		producer:   producer,
		logger:     logger,
		sessionTTL: sessionTTL,
	}
}

// Begin starts a checkout session from the user's cart. An existing active
// session is returned as-is so that a reload resumes where the buyer left
// off. The cart must not be empty.
func (s *CheckoutService) Begin(ctx context.Context, userID string, tier domain.BuyerTier) (*domain.CheckoutSession, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	if tier == "" {
		tier = domain.BuyerRetail
	}
	if !domain.ValidBuyerTier(tier) {
		return nil, apperrors.InvalidInput("unknown buyer tier")
	}

	if existing, err := s.repo.GetActiveByUserID(ctx, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("look up active checkout: %w", err)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.CartEmpty()
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, apperrors.CartEmpty()
	}

	session := domain.NewCheckoutSession(uuid.New().String(), cart, tier, s.sessionTTL)
	session.Quote = s.quoter.Quote(ctx, session, tier)

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if err := s.producer.PublishCheckoutStarted(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.started event",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout started",
		slog.String("checkout_id", session.ID),
		slog.String("user_id", userID),
		slog.Int("item_count", len(session.Items)),
	)

	return session, nil
}

// GetCheckout retrieves a checkout session owned by the given user.
func (s *CheckoutService) GetCheckout(ctx context.Context, sessionID, userID string) (*domain.CheckoutSession, error) {
	return s.loadOwned(ctx, sessionID, userID)
}

// SetShippingAddress stores the shipping address on the session and
// refreshes the quote, since the destination can change shipping and tax.
// Country defaults to US when omitted.
func (s *CheckoutService) SetShippingAddress(ctx context.Context, sessionID, userID string, addr domain.Address) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Step.Terminal() {
		return nil, mapStepError(domain.ErrCheckoutComplete)
	}

	if addr.Country == "" {
		addr.Country = "US"
	}
	if !addr.Complete() {
		return nil, apperrors.InvalidInput("shipping address is missing required fields")
	}

	expectedVersion := session.Version
	session.ShippingAddress = &addr
	s.refreshQuote(ctx, session)

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	s.logger.InfoContext(ctx, "shipping address set",
		slog.String("checkout_id", session.ID),
	)

	return session, nil
}

// SetBillingAddress stores the billing address. Choosing same-as-shipping
// copies the shipping address once; later shipping edits do not follow
// through to billing.
func (s *CheckoutService) SetBillingAddress(ctx context.Context, sessionID, userID string, input BillingInput) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Step.Terminal() {
		return nil, mapStepError(domain.ErrCheckoutComplete)
	}

	expectedVersion := session.Version
	if input.SameAsShipping {
		if session.ShippingAddress == nil {
			return nil, apperrors.InvalidInput("shipping address must be set before billing can mirror it")
		}
		session.UseShippingAsBilling()
	} else {
		if input.Address == nil {
			return nil, apperrors.InvalidInput("billing address is required unless same_as_shipping is set")
		}
		addr := *input.Address
		if addr.Country == "" {
			addr.Country = "US"
		}
		if !addr.Complete() {
			return nil, apperrors.InvalidInput("billing address is missing required fields")
		}
		session.BillingSameAsShipping = false
		session.BillingAddress = &addr
	}
	s.refreshQuote(ctx, session)

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	s.logger.InfoContext(ctx, "billing address set",
		slog.String("checkout_id", session.ID),
		slog.Bool("same_as_shipping", input.SameAsShipping),
	)

	return session, nil
}

// SetPaymentMethod stores how the buyer will pay.
func (s *CheckoutService) SetPaymentMethod(ctx context.Context, sessionID, userID, method string) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Step.Terminal() {
		return nil, mapStepError(domain.ErrCheckoutComplete)
	}

	if !domain.ValidPaymentMethod(method) {
		return nil, apperrors.InvalidInput("payment method must be credit_card or paypal")
	}

	expectedVersion := session.Version
	session.PaymentMethod = method
	s.refreshQuote(ctx, session)

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	s.logger.InfoContext(ctx, "payment method set",
		slog.String("checkout_id", session.ID),
		slog.String("payment_method", method),
	)

	return session, nil
}

// SetNotes stores free-form order notes for the fulfillment team.
func (s *CheckoutService) SetNotes(ctx context.Context, sessionID, userID, notes string) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Step.Terminal() {
		return nil, mapStepError(domain.ErrCheckoutComplete)
	}

	expectedVersion := session.Version
	session.Notes = notes
	s.refreshQuote(ctx, session)

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	return session, nil
}

// Next advances the session to the following step if the current step's
// guard passes. Entering the review step refreshes the quote so the buyer
// reviews current numbers.
func (s *CheckoutService) Next(ctx context.Context, sessionID, userID string) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	expectedVersion := session.Version
	from := session.Step
	if err := session.Advance(); err != nil {
		return nil, mapStepError(err)
	}

	if session.Step == domain.StepReview {
		s.refreshQuote(ctx, session)
	}

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	s.publishStepChanged(ctx, session, from)
	return session, nil
}

// Back moves the session to the previous step. Entered data is retained.
func (s *CheckoutService) Back(ctx context.Context, sessionID, userID string) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	expectedVersion := session.Version
	from := session.Step
	if err := session.Back(); err != nil {
		return nil, mapStepError(err)
	}

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	s.publishStepChanged(ctx, session, from)
	return session, nil
}

// RefreshQuote reprices the session on demand.
func (s *CheckoutService) RefreshQuote(ctx context.Context, sessionID, userID string) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Step.Terminal() {
		return nil, mapStepError(domain.ErrCheckoutComplete)
	}

	expectedVersion := session.Version
	s.refreshQuote(ctx, session)

	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}

	return session, nil
}

// PlaceOrder submits the reviewed session as an order. The processing flag
// is persisted before the call so a double submit is rejected instead of
// creating two orders; the order service is called exactly once and never
// retried. On success the session confirms and the cart is cleared.
func (s *CheckoutService) PlaceOrder(ctx context.Context, sessionID, userID string) (*domain.CheckoutSession, error) {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if session.Step != domain.StepReview {
		return nil, mapStepError(domain.ErrConfirmViaSubmission)
	}
	if session.Processing {
		return nil, apperrors.Conflict("order submission already in progress")
	}

	// Claim the submission. A concurrent PlaceOrder loses the version
	// race here and surfaces as a conflict.
	expectedVersion := session.Version
	session.Processing = true
	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		return nil, fmt.Errorf("claim order submission: %w", err)
	}

	orderID, err := s.orders.CreateOrder(ctx, orders.NewCreateOrderRequest(session))
	if err != nil {
		s.releaseProcessing(ctx, session)

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "order submission failed",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.SubmissionFailed("order could not be submitted, please try again")
	}

	expectedVersion = session.Version
	if err := session.Confirm(orderID); err != nil {
		return nil, mapStepError(err)
	}
	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		// The order exists even though the session failed to persist.
		s.logger.ErrorContext(ctx, "order placed but session update failed",
			slog.String("checkout_id", session.ID),
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("confirm checkout session: %w", err)
	}

	if err := s.carts.Delete(ctx, session.UserID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear cart after order",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	} else if err := s.producer.PublishCartCleared(ctx, session.UserID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishCheckoutCompleted(ctx, session); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.completed event",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("checkout_id", session.ID),
		slog.String("order_id", orderID),
		slog.String("user_id", session.UserID),
	)

	return session, nil
}

// Abandon discards an unconfirmed checkout session. The cart is untouched.
func (s *CheckoutService) Abandon(ctx context.Context, sessionID, userID string) error {
	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if session.Step.Terminal() {
		return mapStepError(domain.ErrCheckoutComplete)
	}
	if session.Processing {
		return apperrors.Conflict("order submission in progress")
	}

	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}

	s.logger.InfoContext(ctx, "checkout abandoned",
		slog.String("checkout_id", sessionID),
		slog.String("user_id", userID),
	)

	return nil
}

// AbandonActiveFor cancels the user's active checkout session, if any.
// The cart service calls this when a cart with an open checkout is
// emptied. A session already confirmed or mid-submission is left alone.
func (s *CheckoutService) AbandonActiveFor(ctx context.Context, userID string) error {
	session, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find active checkout session: %w", err)
	}
	if session.Step.Terminal() || session.Processing {
		return nil
	}

	if err := s.repo.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("delete checkout session: %w", err)
	}

	s.logger.InfoContext(ctx, "checkout abandoned after cart emptied",
		slog.String("checkout_id", session.ID),
		slog.String("user_id", userID),
	)

	return nil
}

// refreshQuote replaces the session quote unless a fresher one landed in
// the meantime; out-of-order responses are dropped.
func (s *CheckoutService) refreshQuote(ctx context.Context, session *domain.CheckoutSession) {
	quote := s.quoter.Quote(ctx, session, session.BuyerTier)
	if pricing.Fresher(session.Quote, quote) {
		session.Quote = quote
	}
}

// releaseProcessing clears the processing flag after a failed submission.
func (s *CheckoutService) releaseProcessing(ctx context.Context, session *domain.CheckoutSession) {
	expectedVersion := session.Version
	session.Processing = false
	if err := s.repo.UpdateIfVersion(ctx, session, expectedVersion); err != nil {
		s.logger.ErrorContext(ctx, "failed to release order submission claim",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}

// publishStepChanged emits the event; publish failures are logged, not fatal.
func (s *CheckoutService) publishStepChanged(ctx context.Context, session *domain.CheckoutSession, from domain.Step) {
	if err := s.producer.PublishCheckoutStepChanged(ctx, session, from); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.step_changed event",
			slog.String("checkout_id", session.ID),
			slog.String("error", err.Error()),
		)
	}
}

// loadOwned fetches a session and enforces ownership and expiry.
func (s *CheckoutService) loadOwned(ctx context.Context, sessionID, userID string) (*domain.CheckoutSession, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("checkout id is required")
	}
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("checkout_session", sessionID)
		}
		return nil, fmt.Errorf("get checkout session: %w", err)
	}

	if session.UserID != userID {
		return nil, apperrors.Forbidden("checkout session belongs to another user")
	}
	if session.Step != domain.StepConfirmed && time.Now().UTC().After(session.ExpiresAt) {
		return nil, apperrors.Gone("checkout session has expired")
	}

	return session, nil
}

// mapStepError translates flow guard errors into API errors.
func mapStepError(err error) error {
	switch {
	case errors.Is(err, domain.ErrShippingIncomplete):
		return apperrors.InvalidInput("complete the shipping address before continuing")
	case errors.Is(err, domain.ErrPaymentIncomplete):
		return apperrors.InvalidInput("select a payment method before continuing")
	case errors.Is(err, domain.ErrBillingIncomplete):
		return apperrors.InvalidInput("complete the billing address before continuing")
	case errors.Is(err, domain.ErrConfirmViaSubmission):
		return apperrors.InvalidInput("the review step is completed by placing the order")
	case errors.Is(err, domain.ErrCheckoutComplete):
		return apperrors.Gone("checkout session is already confirmed")
	case errors.Is(err, domain.ErrNoPreviousStep):
		return apperrors.InvalidInput("already at the first checkout step")
	default:
		return err
	}
}

package domain

import (
	"errors"
	"time"
)

// Step identifies a stage of the checkout flow.
type Step string

const (
	StepShipping  Step = "shipping"
	StepPayment   Step = "payment"
	StepReview    Step = "review"
	StepConfirmed Step = "confirmed"
)

// Valid reports whether s is a known checkout step.
func (s Step) Valid() bool {
	switch s {
	case StepShipping, StepPayment, StepReview, StepConfirmed:
		return true
	}
	return false
}

// Terminal reports whether the step ends the flow.
func (s Step) Terminal() bool {
	return s == StepConfirmed
}

// Payment methods accepted at checkout.
const (
	PaymentCreditCard = "credit_card"
	PaymentPaypal     = "paypal"
)

// ValidPaymentMethod reports whether m is an accepted payment method.
func ValidPaymentMethod(m string) bool {
	return m == PaymentCreditCard || m == PaymentPaypal
}

// Transition guard errors. The service layer maps these onto API errors.
var (
	ErrShippingIncomplete   = errors.New("shipping address incomplete")
	ErrPaymentIncomplete    = errors.New("payment details incomplete")
	ErrBillingIncomplete    = errors.New("billing address incomplete")
	ErrConfirmViaSubmission = errors.New("review step advances only through order submission")
	ErrCheckoutComplete     = errors.New("checkout already confirmed")
	ErrNoPreviousStep       = errors.New("no previous step")
)

// Address holds a shipping or billing address.
type Address struct {
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Company       string `json:"company,omitempty"`
	StreetAddress string `json:"street_address" validate:"required"`
	Apartment     string `json:"apartment,omitempty"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required"`
	PostalCode    string `json:"postal_code" validate:"required"`
	Country       string `json:"country"`
	Phone         string `json:"phone,omitempty"`
}

// Complete reports whether every required address field is filled.
func (a *Address) Complete() bool {
	if a == nil {
		return false
	}
	return a.FirstName != "" && a.LastName != "" && a.StreetAddress != "" &&
		a.City != "" && a.State != "" && a.PostalCode != "" && a.Country != ""
}

// QuoteBasis tags where a quote's numbers came from.
type QuoteBasis string

const (
	// BasisEstimated marks totals computed locally while the order
	// service was unreachable.
	BasisEstimated QuoteBasis = "estimated"
	// BasisConfirmed marks totals returned by the order service.
	BasisConfirmed QuoteBasis = "confirmed"
)

// OrderCalculation is the priced breakdown of a checkout. All amounts
// are in cents.
type OrderCalculation struct {
	Subtotal       int64  `json:"subtotal"`
	DiscountAmount int64  `json:"discount_amount"`
	TaxAmount      int64  `json:"tax_amount"`
	ShippingCost   int64  `json:"shipping_cost"`
	TotalAmount    int64  `json:"total_amount"`
	Currency       string `json:"currency"`
}

// Consistent reports whether the total matches its components.
func (c OrderCalculation) Consistent() bool {
	return c.TotalAmount == c.Subtotal-c.DiscountAmount+c.TaxAmount+c.ShippingCost
}

// Quote is a priced snapshot of the session shown to the buyer.
type Quote struct {
	Calculation OrderCalculation `json:"calculation"`
	Basis       QuoteBasis       `json:"basis"`
	Seq         uint64           `json:"seq"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// CheckoutSession carries a buyer through the checkout flow. The session
// snapshots the cart lines when it starts; the cart itself stays untouched
// until the order is confirmed.
type CheckoutSession struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	CartID                string     `json:"cart_id"`
	Step                  Step       `json:"step"`
	Items                 []LineItem `json:"items"`
	Currency              string     `json:"currency"`
	BuyerTier             BuyerTier  `json:"buyer_tier"`
	ShippingAddress       *Address   `json:"shipping_address,omitempty"`
	BillingAddress        *Address   `json:"billing_address,omitempty"`
	BillingSameAsShipping bool       `json:"billing_same_as_shipping"`
	PaymentMethod         string     `json:"payment_method,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	Quote                 *Quote     `json:"quote,omitempty"`
	Processing            bool       `json:"processing"`
	OrderID               string     `json:"order_id,omitempty"`
	Version               int        `json:"version"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ExpiresAt             time.Time  `json:"expires_at"`
}

// NewCheckoutSession starts a session at the shipping step with a snapshot
// of the given cart lines.
func NewCheckoutSession(id string, cart *Cart, tier BuyerTier, ttl time.Duration) *CheckoutSession {
	now := time.Now().UTC()
	items := make([]LineItem, len(cart.Items))
	copy(items, cart.Items)
	return &CheckoutSession{
		ID:        id,
		UserID:    cart.UserID,
		CartID:    cart.ID,
		Step:      StepShipping,
		Items:     items,
		Currency:  cart.Currency,
		BuyerTier: tier,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Subtotal returns the sum of the snapshot line totals (in cents).
func (s *CheckoutSession) Subtotal() int64 {
	var total int64
	for i := range s.Items {
		total += s.Items[i].LineTotal()
	}
	return total
}

// EffectiveBillingAddress returns the address to bill against, falling
// back to the shipping address when the buyer chose same-as-shipping
// and no copy has been taken yet.
func (s *CheckoutSession) EffectiveBillingAddress() *Address {
	if s.BillingAddress != nil {
		return s.BillingAddress
	}
	if s.BillingSameAsShipping {
		return s.ShippingAddress
	}
	return nil
}

// UseShippingAsBilling copies the current shipping address into the
// billing address. The copy is taken once; later edits to the shipping
// address do not follow through.
func (s *CheckoutSession) UseShippingAsBilling() {
	s.BillingSameAsShipping = true
	if s.ShippingAddress != nil {
		addr := *s.ShippingAddress
		s.BillingAddress = &addr
	}
}

// Advance moves the session to the next step if the current step's guard
// passes. The review step cannot be advanced here; it completes only
// through Confirm after a successful order submission.
func (s *CheckoutSession) Advance() error {
	switch s.Step {
	case StepShipping:
		if !s.ShippingAddress.Complete() {
			return ErrShippingIncomplete
		}
		s.Step = StepPayment
	case StepPayment:
		if !ValidPaymentMethod(s.PaymentMethod) {
			return ErrPaymentIncomplete
		}
		if !s.EffectiveBillingAddress().Complete() {
			return ErrBillingIncomplete
		}
		s.Step = StepReview
	case StepReview:
		return ErrConfirmViaSubmission
	case StepConfirmed:
		return ErrCheckoutComplete
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Back moves the session to the previous step. Data entered at later
// steps is retained so the buyer can step forward again without retyping.
func (s *CheckoutSession) Back() error {
	switch s.Step {
	case StepShipping:
		return ErrNoPreviousStep
	case StepPayment:
		s.Step = StepShipping
	case StepReview:
		s.Step = StepPayment
	case StepConfirmed:
		return ErrCheckoutComplete
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Confirm marks the session confirmed with the submitted order's ID.
// Only a session at the review step can confirm.
func (s *CheckoutSession) Confirm(orderID string) error {
	if s.Step != StepReview {
		return ErrConfirmViaSubmission
	}
	s.Step = StepConfirmed
	s.OrderID = orderID
	s.Processing = false
	s.UpdatedAt = time.Now().UTC()
	return nil
}

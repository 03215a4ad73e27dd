package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddress() *Address {
	return &Address{
		FirstName:     "Ada",
		LastName:      "Okafor",
		StreetAddress: "14 Mill Rd",
		City:          "Portland",
		State:         "OR",
		PostalCode:    "97201",
		Country:       "US",
	}
}

func newTestSession() *CheckoutSession {
	cart := NewCart("cart-1", "user-1", "USD", time.Hour)
	cart.AddItem(LineItem{ProductID: "p1", UnitPrice: 4599, Quantity: 2})
	return NewCheckoutSession("cs-1", cart, BuyerWholesale, 30*time.Minute)
}

func TestNewCheckoutSession_SnapshotsCart(t *testing.T) {
	cart := NewCart("cart-1", "user-1", "USD", time.Hour)
	cart.AddItem(LineItem{ProductID: "p1", UnitPrice: 4599, Quantity: 2})
	sess := NewCheckoutSession("cs-1", cart, BuyerWholesale, 30*time.Minute)

	assert.Equal(t, StepShipping, sess.Step)
	assert.Equal(t, "cart-1", sess.CartID)
	assert.Equal(t, BuyerWholesale, sess.BuyerTier)
	require.Len(t, sess.Items, 1)

	// mutating the cart afterwards must not change the snapshot
	cart.AddItem(LineItem{ProductID: "p2", UnitPrice: 100, Quantity: 1})
	assert.Len(t, sess.Items, 1)
	assert.Equal(t, int64(9198), sess.Subtotal())
}

func TestAdvance_ShippingRequiresCompleteAddress(t *testing.T) {
	sess := newTestSession()

	err := sess.Advance()
	assert.ErrorIs(t, err, ErrShippingIncomplete)
	assert.Equal(t, StepShipping, sess.Step)

	addr := testAddress()
	addr.PostalCode = ""
	sess.ShippingAddress = addr
	assert.ErrorIs(t, sess.Advance(), ErrShippingIncomplete)

	sess.ShippingAddress = testAddress()
	require.NoError(t, sess.Advance())
	assert.Equal(t, StepPayment, sess.Step)
}

func TestAdvance_PaymentRequiresMethodAndBilling(t *testing.T) {
	sess := newTestSession()
	sess.ShippingAddress = testAddress()
	require.NoError(t, sess.Advance())

	err := sess.Advance()
	assert.ErrorIs(t, err, ErrPaymentIncomplete)

	sess.PaymentMethod = PaymentCreditCard
	err = sess.Advance()
	assert.ErrorIs(t, err, ErrBillingIncomplete)

	sess.UseShippingAsBilling()
	require.NoError(t, sess.Advance())
	assert.Equal(t, StepReview, sess.Step)
}

func TestAdvance_ReviewOnlyThroughConfirm(t *testing.T) {
	sess := newTestSession()
	sess.Step = StepReview

	err := sess.Advance()
	assert.ErrorIs(t, err, ErrConfirmViaSubmission)
	assert.Equal(t, StepReview, sess.Step)
}

func TestAdvance_ConfirmedIsTerminal(t *testing.T) {
	sess := newTestSession()
	sess.Step = StepConfirmed

	assert.ErrorIs(t, sess.Advance(), ErrCheckoutComplete)
	assert.ErrorIs(t, sess.Back(), ErrCheckoutComplete)
}

func TestBack_RetainsEnteredData(t *testing.T) {
	sess := newTestSession()
	sess.ShippingAddress = testAddress()
	require.NoError(t, sess.Advance())
	sess.PaymentMethod = PaymentPaypal
	sess.UseShippingAsBilling()
	require.NoError(t, sess.Advance())

	require.NoError(t, sess.Back())
	assert.Equal(t, StepPayment, sess.Step)
	assert.Equal(t, PaymentPaypal, sess.PaymentMethod)

	require.NoError(t, sess.Back())
	assert.Equal(t, StepShipping, sess.Step)
	assert.NotNil(t, sess.ShippingAddress)

	assert.ErrorIs(t, sess.Back(), ErrNoPreviousStep)
}

func TestConfirm(t *testing.T) {
	sess := newTestSession()
	sess.Step = StepReview
	sess.Processing = true

	require.NoError(t, sess.Confirm("order-42"))
	assert.Equal(t, StepConfirmed, sess.Step)
	assert.Equal(t, "order-42", sess.OrderID)
	assert.False(t, sess.Processing)
}

func TestConfirm_RejectsNonReviewSteps(t *testing.T) {
	for _, step := range []Step{StepShipping, StepPayment, StepConfirmed} {
		sess := newTestSession()
		sess.Step = step
		assert.ErrorIs(t, sess.Confirm("order-42"), ErrConfirmViaSubmission, "step %s", step)
	}
}

func TestUseShippingAsBilling_CopiesOnce(t *testing.T) {
	sess := newTestSession()
	sess.ShippingAddress = testAddress()
	sess.UseShippingAsBilling()

	require.NotNil(t, sess.BillingAddress)
	assert.Equal(t, "Portland", sess.BillingAddress.City)

	// later shipping edits do not follow into billing
	sess.ShippingAddress.City = "Eugene"
	assert.Equal(t, "Portland", sess.BillingAddress.City)
}

func TestEffectiveBillingAddress(t *testing.T) {
	sess := newTestSession()
	assert.Nil(t, sess.EffectiveBillingAddress())

	sess.ShippingAddress = testAddress()
	sess.BillingSameAsShipping = true
	assert.Equal(t, sess.ShippingAddress, sess.EffectiveBillingAddress())

	other := testAddress()
	other.City = "Salem"
	sess.BillingAddress = other
	assert.Equal(t, "Salem", sess.EffectiveBillingAddress().City)
}

func TestAddressComplete(t *testing.T) {
	assert.False(t, (*Address)(nil).Complete())
	assert.True(t, testAddress().Complete())

	addr := testAddress()
	addr.Country = ""
	assert.False(t, addr.Complete())
}

func TestStepValid(t *testing.T) {
	assert.True(t, StepShipping.Valid())
	assert.True(t, StepConfirmed.Valid())
	assert.False(t, Step("billing").Valid())
}

func TestValidPaymentMethod(t *testing.T) {
	assert.True(t, ValidPaymentMethod(PaymentCreditCard))
	assert.True(t, ValidPaymentMethod(PaymentPaypal))
	assert.False(t, ValidPaymentMethod("bitcoin"))
	assert.False(t, ValidPaymentMethod(""))
}

func TestOrderCalculationConsistent(t *testing.T) {
	calc := OrderCalculation{Subtotal: 10000, DiscountAmount: 500, TaxAmount: 760, ShippingCost: 1500, TotalAmount: 11760}
	assert.True(t, calc.Consistent())

	calc.TotalAmount = 11761
	assert.False(t, calc.Consistent())
}

package pricing

import (
	"sort"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
)

// DiscountTier grants a volume discount once the discountable subtotal
// reaches MinSubtotal. PercentBP is the discount in basis points.
type DiscountTier struct {
	MinSubtotal int64
	PercentBP   int
}

// Policy holds the pricing knobs. All monetary values are in cents and
// all rates in basis points.
type Policy struct {
	Currency              string
	TaxRateBP             int
	FreeShippingThreshold int64
	FlatShippingFee       int64
	Tiers                 []DiscountTier
	// CategoryMOQ maps a product category to the minimum total quantity
	// the cart must carry in that category before its lines count toward
	// the volume discount. Categories without an entry always qualify.
	CategoryMOQ map[string]int
}

// DefaultPolicy returns the standard marketplace pricing policy.
func DefaultPolicy() Policy {
	return Policy{
		Currency:              "USD",
		TaxRateBP:             800,
		FreeShippingThreshold: 10000,
		FlatShippingFee:       1500,
		Tiers: []DiscountTier{
			{MinSubtotal: 50000, PercentBP: 500},
			{MinSubtotal: 250000, PercentBP: 1500},
			{MinSubtotal: 1000000, PercentBP: 2500},
		},
	}
}

// Engine prices an order locally. It backs quote generation whenever the
// order service cannot be reached, so its math must agree with the order
// service's.
type Engine struct {
	policy Policy
}

// NewEngine returns an engine for the given policy. Tiers are sorted by
// threshold so lookup can take the last tier that fits.
func NewEngine(policy Policy) *Engine {
	tiers := make([]DiscountTier, len(policy.Tiers))
	copy(tiers, policy.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinSubtotal < tiers[j].MinSubtotal })
	policy.Tiers = tiers
	return &Engine{policy: policy}
}

// Calculate prices the given lines: subtotal, volume discount, tax on the
// discounted amount, then shipping. Volume discounts apply to wholesale
// buyers only.
func (e *Engine) Calculate(items []domain.LineItem, tier domain.BuyerTier) domain.OrderCalculation {
	var subtotal int64
	for i := range items {
		subtotal += items[i].LineTotal()
	}

	discount := e.volumeDiscount(items, subtotal, tier)
	taxed := subtotal - discount
	tax := roundHalfUp(taxed, e.policy.TaxRateBP)

	var shipping int64
	if taxed < e.policy.FreeShippingThreshold {
		shipping = e.policy.FlatShippingFee
	}

	return domain.OrderCalculation{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      tax,
		ShippingCost:   shipping,
		TotalAmount:    taxed + tax + shipping,
		Currency:       e.policy.Currency,
	}
}

// volumeDiscount computes the discount over the lines whose category meets
// its minimum order quantity. The tier is chosen by the qualifying subtotal.
func (e *Engine) volumeDiscount(items []domain.LineItem, subtotal int64, tier domain.BuyerTier) int64 {
	if tier != domain.BuyerWholesale || subtotal == 0 {
		return 0
	}

	discountable := subtotal
	if len(e.policy.CategoryMOQ) > 0 {
		perCategory := make(map[string]int)
		for i := range items {
			perCategory[items[i].Category] += items[i].Quantity
		}
		discountable = 0
		for i := range items {
			moq, gated := e.policy.CategoryMOQ[items[i].Category]
			if gated && perCategory[items[i].Category] < moq {
				continue
			}
			discountable += items[i].LineTotal()
		}
	}

	var percentBP int
	for _, t := range e.policy.Tiers {
		if discountable >= t.MinSubtotal {
			percentBP = t.PercentBP
		}
	}
	return discountable * int64(percentBP) / 10000
}

// roundHalfUp applies a basis-point rate with half-up rounding to the cent.
func roundHalfUp(amount int64, rateBP int) int64 {
	return (amount*int64(rateBP) + 5000) / 10000
}

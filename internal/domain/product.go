package domain

import "time"

// Product mirrors the catalog service's product representation. The
// catalog owns this data; it is read here to validate cart additions
// and to capture line details at add time.
type Product struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	Category             string    `json:"category"`
	SKU                  string    `json:"sku"`
	PricePerUnit         int64     `json:"price_per_unit"`
	UnitLabel            string    `json:"unit_label"`
	AvailableQuantity    int       `json:"available_quantity"`
	MinimumOrderQuantity int       `json:"minimum_order_quantity"`
	SupplierID           string    `json:"supplier_id"`
	IsActive             bool      `json:"is_active"`
	IsApproved           bool      `json:"is_approved"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Purchasable reports whether the product can be added to a cart.
func (p *Product) Purchasable() bool {
	return p.IsActive && p.IsApproved
}

// BuyerTier classifies an account for pricing purposes.
type BuyerTier string

const (
	BuyerRetail    BuyerTier = "retail"
	BuyerWholesale BuyerTier = "wholesale"
)

// ValidBuyerTier reports whether t is a known buyer tier.
func ValidBuyerTier(t BuyerTier) bool {
	return t == BuyerRetail || t == BuyerWholesale
}

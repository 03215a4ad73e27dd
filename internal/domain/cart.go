package domain

import "time"

// Cart represents a buyer's shopping cart.
type Cart struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Items      []LineItem `json:"items"`
	TotalItems int        `json:"total_items"`
	TotalPrice int64      `json:"total_price"`
	Currency   string     `json:"currency"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// LineItem represents a single product line in the cart. Lines are
// keyed by ProductID alone. UnitPrice is captured when the line is
// first added and does not follow later catalog price changes.
type LineItem struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	SKU       string    `json:"sku"`
	UnitLabel string    `json:"unit_label"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// LineTotal returns the extended price of the line (in cents).
func (li LineItem) LineTotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// NewCart returns an empty cart for the given user.
func NewCart(id, userID, currency string, ttl time.Duration) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:        id,
		UserID:    userID,
		Items:     []LineItem{},
		Currency:  currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// FindItemIndex returns the index of the line matching the given product ID,
// or -1 if the product is not in the cart.
func (c *Cart) FindItemIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem merges the given line into the cart. If the product is already
// present the quantities are summed and the existing unit price is kept;
// otherwise the line is appended, preserving insertion order.
func (c *Cart) AddItem(item LineItem) {
	if idx := c.FindItemIndex(item.ProductID); idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
	} else {
		if item.AddedAt.IsZero() {
			item.AddedAt = time.Now().UTC()
		}
		c.Items = append(c.Items, item)
	}
	c.recompute()
}

// SetItemQuantity replaces the quantity of an existing line. A quantity of
// zero or less removes the line. Setting a quantity for a product that is
// not in the cart is a no-op.
func (c *Cart) SetItemQuantity(productID string, quantity int) {
	idx := c.FindItemIndex(productID)
	if idx < 0 {
		return
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Quantity = quantity
	}
	c.recompute()
}

// RemoveItem deletes the line for the given product. Removing a product
// that is not in the cart is a no-op.
func (c *Cart) RemoveItem(productID string) {
	idx := c.FindItemIndex(productID)
	if idx < 0 {
		return
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	c.recompute()
}

// Clear removes every line from the cart.
func (c *Cart) Clear() {
	c.Items = []LineItem{}
	c.recompute()
}

// ItemQuantity returns the quantity for the given product, or 0 if the
// product is not in the cart.
func (c *Cart) ItemQuantity(productID string) int {
	if idx := c.FindItemIndex(productID); idx >= 0 {
		return c.Items[idx].Quantity
	}
	return 0
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// recompute refreshes the cached totals from the lines. Every mutation
// goes through here so the totals never drift from the items.
func (c *Cart) recompute() {
	var count int
	var total int64
	for i := range c.Items {
		count += c.Items[i].Quantity
		total += c.Items[i].LineTotal()
	}
	c.TotalItems = count
	c.TotalPrice = total
	c.UpdatedAt = time.Now().UTC()
}

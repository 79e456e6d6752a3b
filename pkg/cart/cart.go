// Package cart implements the cart reconciliation engine: one logical cart
// that is server-backed for authenticated users and locally held for guests,
// with optimistic mutations, debounced quantity updates, and rollback on
// failure.
package cart

import (
	"time"

	"github.com/google/uuid"
)

// Item is one cart line. Exactly one line exists per distinct product in a
// cart; adding an existing product increments its quantity.
type Item struct {
	// ID identifies the line as held server-side. Guest lines carry a
	// locally generated id until the cart is restored into a session.
	ID string `json:"cartItemId,omitempty"`

	// ProductID is stable across sessions.
	ProductID string `json:"productId"`

	Name     string  `json:"name,omitempty"`
	Image    string  `json:"image,omitempty"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Cart is the logical shopping cart.
type Cart struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// NewGuestCart creates an empty locally held cart.
func NewGuestCart() *Cart {
	now := time.Now()
	return &Cart{
		ID:        "guest-" + uuid.NewString(),
		Items:     []Item{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Total is the derived cart total: sum of unit price times quantity.
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// ItemCount is the derived number of units across all lines.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Clone returns a deep copy. Optimistic mutations capture one before
// applying so a failed mutation can restore it verbatim.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = append([]Item(nil), c.Items...)
	return &clone
}

// merge folds item into the cart, incrementing the quantity of an existing
// line for the same product instead of inserting a duplicate row. New lines
// without an id get a locally generated one.
func (c *Cart) merge(item Item) {
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			c.UpdatedAt = time.Now()
			return
		}
	}
	if item.ID == "" {
		item.ID = "line-" + uuid.NewString()
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = time.Now()
}

// find returns the line with the given id, or nil.
func (c *Cart) find(itemID string) *Item {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// remove drops the line with the given id, reporting whether it existed.
func (c *Cart) remove(itemID string) bool {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CartLineItem captures the product's display fields at add time so later
// catalog edits or deletes do not change what the shopper sees.
type CartLineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
	Weight    string          `json:"weight,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns quantity × unit price.
func (li CartLineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 999

// Cart is one shopper's in-progress selection. It is not safe for concurrent
// use; a cart belongs to exactly one session.
type Cart struct {
	ID        string         `json:"id"`
	Lines     []CartLineItem `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func NewCart(id string) *Cart {
	return &Cart{ID: id, UpdatedAt: time.Now()}
}

// AddItem increments the line for product.ID by quantity, appending a new
// line when the product is not in the cart yet.
func (c *Cart) AddItem(product Product, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if quantity > MaxLineQuantity {
		return errQuantityTooLarge()
	}
	if i := c.index(product.ID); i >= 0 {
		if c.Lines[i].Quantity > MaxLineQuantity-quantity {
			return errQuantityTooLarge()
		}
		c.Lines[i].Quantity += quantity
	} else {
		c.Lines = append(c.Lines, CartLineItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Image:     product.Image,
			Weight:    product.Weight,
			Quantity:  quantity,
		})
	}
	c.touch()
	return nil
}

// SetQuantity replaces the quantity of a line. A quantity of zero or less
// removes the line. Unknown product IDs are ignored.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	if quantity > MaxLineQuantity {
		return errQuantityTooLarge()
	}
	i := c.index(productID)
	if i < 0 {
		return nil
	}
	if quantity <= 0 {
		c.removeAt(i)
		return nil
	}
	c.Lines[i].Quantity = quantity
	c.touch()
	return nil
}

func (c *Cart) RemoveItem(productID string) {
	if i := c.index(productID); i >= 0 {
		c.removeAt(i)
	}
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.touch()
}

// Items returns a copy of the line items.
func (c *Cart) Items() []CartLineItem {
	out := make([]CartLineItem, len(c.Lines))
	copy(out, c.Lines)
	return out
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) TotalItemCount() int {
	n := 0
	for _, li := range c.Lines {
		n += li.Quantity
	}
	return n
}

func (c *Cart) TotalPrice() decimal.Decimal {
	return sumLines(c.Lines)
}

func (c *Cart) index(productID string) int {
	for i, li := range c.Lines {
		if li.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.touch()
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now()
}

func errQuantityTooLarge() error {
	return fmt.Errorf("%w: quantity must not exceed %d per product", ErrValidation, MaxLineQuantity)
}

func sumLines(lines []CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range lines {
		total = total.Add(li.Subtotal())
	}
	return total
}

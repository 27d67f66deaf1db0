package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is an open-ended product grouping used for storefront filtering.
type Category string

const (
	CategoryFlour    Category = "flour"
	CategoryCouscous Category = "couscous"
	CategoryPasta    Category = "pasta"
	CategoryGrain    Category = "grain"
	CategoryOther    Category = "other"
)

// PriceScale is the number of fractional digits a price may carry. The
// tabular stores keep money as DECIMAL(12, 2).
const PriceScale = 2

type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int // advisory only, never reserved
	Weight      string
	Category    Category
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the fields an admin may set. The identifier is not checked
// because stores assign it.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if !p.Price.Equal(p.Price.Round(PriceScale)) {
		return fmt.Errorf("%w: price must have at most %d decimal places", ErrValidation, PriceScale)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	return nil
}

// ProductPatch carries a partial product update. Nil fields are left as is.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Weight      *string
	Category    *Category
	Image       *string
}

// Apply merges the patch into p and validates the result.
func (pp ProductPatch) Apply(p Product) (Product, error) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Stock != nil {
		p.Stock = *pp.Stock
	}
	if pp.Weight != nil {
		p.Weight = *pp.Weight
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Image != nil {
		p.Image = *pp.Image
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

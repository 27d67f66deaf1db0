package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/biosalim/internal/core/domain"
)

// Records are the canonical JSON layout of the key-value slots. Orders
// written by the browser storefront use camelCase keys (customerName,
// totalPrice, date, productId, price); those are accepted on read and never
// written.

type productRecord struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       int              `json:"stock"`
	Weight      string           `json:"weight,omitempty"`
	Category    string           `json:"category,omitempty"`
	Image       string           `json:"image,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func toProductRecord(p domain.Product) productRecord {
	price := p.Price
	return productRecord{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       &price,
		Stock:       p.Stock,
		Weight:      p.Weight,
		Category:    string(p.Category),
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r productRecord) toDomain() domain.Product {
	p := domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Stock:       r.Stock,
		Weight:      r.Weight,
		Category:    domain.Category(r.Category),
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if p.Category == "" {
		p.Category = domain.CategoryOther
	}
	return p
}

type orderItemRecord struct {
	ProductID   string           `json:"product_id,omitempty"`
	ProductName string           `json:"product_name,omitempty"`
	Quantity    int              `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`

	LegacyProductID   string           `json:"productId,omitempty"`
	LegacyProductName string           `json:"productName,omitempty"`
	LegacyPrice       *decimal.Decimal `json:"price,omitempty"`
}

func (r orderItemRecord) toDomain() domain.OrderItem {
	it := domain.OrderItem{
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
	}
	if it.ProductID == "" {
		it.ProductID = r.LegacyProductID
	}
	if it.ProductName == "" {
		it.ProductName = r.LegacyProductName
	}
	switch {
	case r.UnitPrice != nil:
		it.UnitPrice = *r.UnitPrice
	case r.LegacyPrice != nil:
		it.UnitPrice = *r.LegacyPrice
	}
	return it
}

type orderRecord struct {
	ID           string            `json:"id"`
	CustomerName string            `json:"customer_name,omitempty"`
	Phone        string            `json:"phone"`
	Address      string            `json:"address"`
	Notes        string            `json:"notes,omitempty"`
	Items        []orderItemRecord `json:"items"`
	TotalPrice   *decimal.Decimal  `json:"total_price,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	LegacyCustomerName string           `json:"customerName,omitempty"`
	LegacyTotalPrice   *decimal.Decimal `json:"totalPrice,omitempty"`
	LegacyDate         *time.Time       `json:"date,omitempty"`
}

func toOrderRecord(o domain.Order) orderRecord {
	items := make([]orderItemRecord, 0, len(o.Items))
	for _, it := range o.Items {
		price := it.UnitPrice
		items = append(items, orderItemRecord{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   &price,
		})
	}
	total := o.TotalPrice
	return orderRecord{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Phone:        o.Phone,
		Address:      o.Address,
		Notes:        o.Notes,
		Items:        items,
		TotalPrice:   &total,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func (r orderRecord) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, it.toDomain())
	}
	o := domain.Order{
		ID:           r.ID,
		CustomerName: r.CustomerName,
		Phone:        r.Phone,
		Address:      r.Address,
		Notes:        r.Notes,
		Items:        items,
		Status:       domain.OrderStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if o.CustomerName == "" {
		o.CustomerName = r.LegacyCustomerName
	}
	switch {
	case r.TotalPrice != nil:
		o.TotalPrice = *r.TotalPrice
	case r.LegacyTotalPrice != nil:
		o.TotalPrice = *r.LegacyTotalPrice
	}
	if o.CreatedAt.IsZero() && r.LegacyDate != nil {
		o.CreatedAt = *r.LegacyDate
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	return o
}

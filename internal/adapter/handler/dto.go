package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/biosalim/internal/core/domain"
)

// Wire shapes shared by the HTTP and gRPC transports. Money is encoded as a
// decimal string.

type ProductDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Weight      string          `json:"weight"`
	Category    string          `json:"category"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toProductDTO(p domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Weight:      p.Weight,
		Category:    string(p.Category),
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProductDTOs(products []domain.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toProductDTO(p))
	}
	return out
}

type CartItemDTO struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Weight    string          `json:"weight,omitempty"`
	Image     string          `json:"image,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartDTO struct {
	Items      []CartItemDTO   `json:"items"`
	ItemCount  int             `json:"item_count"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func toCartDTO(c *domain.Cart) CartDTO {
	lines := c.Items()
	items := make([]CartItemDTO, 0, len(lines))
	for _, li := range lines {
		items = append(items, CartItemDTO{
			ProductID: li.ProductID,
			Name:      li.Name,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
			Weight:    li.Weight,
			Image:     li.Image,
			Subtotal:  li.Subtotal(),
		})
	}
	return CartDTO{
		Items:      items,
		ItemCount:  c.TotalItemCount(),
		TotalPrice: c.TotalPrice(),
	}
}

type OrderItemDTO struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type OrderDTO struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	Notes        string          `json:"notes,omitempty"`
	Items        []OrderItemDTO  `json:"items"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toOrderDTO(o domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return OrderDTO{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Phone:        o.Phone,
		Address:      o.Address,
		Notes:        o.Notes,
		Items:        items,
		TotalPrice:   o.TotalPrice,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toOrderDTOs(orders []domain.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	return out
}

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequest struct {
	// Quantity is required; zero or less removes the line
	Quantity *int `json:"quantity"`
}

type CheckoutRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Weight      string          `json:"weight"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

func (r ProductRequest) toDomain() domain.Product {
	return domain.Product{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Weight:      r.Weight,
		Category:    domain.Category(r.Category),
		Image:       r.Image,
	}
}

// ProductPatchRequest only carries the fields the admin changed.
type ProductPatchRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Weight      *string          `json:"weight"`
	Category    *string          `json:"category"`
	Image       *string          `json:"image"`
}

func (r ProductPatchRequest) toDomain() domain.ProductPatch {
	patch := domain.ProductPatch{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Weight:      r.Weight,
		Image:       r.Image,
	}
	if r.Category != nil {
		c := domain.Category(*r.Category)
		patch.Category = &c
	}
	return patch
}

type StatusRequest struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

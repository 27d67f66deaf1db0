package port

import (
	"context"

	"github.com/rl1809/biosalim/internal/core/domain"
)

type CatalogRepository interface {
	// ListProducts returns every product in ascending identifier order
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// GetProduct returns domain.ErrNotFound when the product does not exist
	GetProduct(ctx context.Context, id string) (domain.Product, error)

	// CreateProduct assigns a new identifier and persists the product
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)

	// UpdateProduct merges the patch into the stored product
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error)

	// DeleteProduct removes the product; deleting an absent product is a no-op
	DeleteProduct(ctx context.Context, id string) error
}

type OrderRepository interface {
	// ListOrders returns every order in creation order
	ListOrders(ctx context.Context) ([]domain.Order, error)

	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// CreateOrder appends the order atomically: all of it is stored or none
	CreateOrder(ctx context.Context, order domain.Order) error

	// UpdateOrderStatus changes only the status and update time
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error)
}

// Storage is the single persistence boundary for catalog and orders. The
// key-value and tabular adapters both implement it.
type Storage interface {
	CatalogRepository
	OrderRepository

	Ping(ctx context.Context) error
	Close() error
}

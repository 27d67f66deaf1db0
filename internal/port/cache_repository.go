package port

import (
	"context"
	"errors"

	"github.com/rl1809/biosalim/internal/core/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository keeps session carts. Carts expire with the session and are
// never shared between sessions.
type CartRepository interface {
	// GetCart returns ErrCartNotFound for unknown or expired carts
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)

	SaveCart(ctx context.Context, cart *domain.Cart) error

	DeleteCart(ctx context.Context, cartID string) error
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

// ProductLookup resolves a product so its display fields can be captured
// into a cart line.
type ProductLookup interface {
	Get(ctx context.Context, id string) (domain.Product, error)
}

// CartService applies cart operations to the session cart held in the cart
// repository.
type CartService struct {
	carts   port.CartRepository
	catalog ProductLookup
	timeout time.Duration
	logger  *slog.Logger
}

func NewCartService(carts port.CartRepository, catalog ProductLookup, timeout time.Duration, logger *slog.Logger) *CartService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartService{
		carts:   carts,
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

// Get returns the session cart, or a fresh empty cart when the session has
// none yet.
func (s *CartService) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	cart, err := s.carts.GetCart(ctx, cartID)
	if errors.Is(err, port.ErrCartNotFound) {
		return domain.NewCart(cartID), nil
	}
	if err != nil {
		s.logger.Error("load cart failed", "cart_id", cartID, "error", err)
		return nil, storeErr("load cart", err)
	}
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	return s.mutate(ctx, cartID, func(c *domain.Cart) error {
		return c.AddItem(product, quantity)
	})
}

func (s *CartService) SetQuantity(ctx context.Context, cartID, productID string, quantity int) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(c *domain.Cart) error {
		return c.SetQuantity(productID, quantity)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	return s.mutate(ctx, cartID, func(c *domain.Cart) error {
		c.RemoveItem(productID)
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, cartID string) error {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	if err := s.carts.DeleteCart(ctx, cartID); err != nil {
		s.logger.Error("clear cart failed", "cart_id", cartID, "error", err)
		return storeErr("clear cart", err)
	}
	return nil
}

func (s *CartService) mutate(ctx context.Context, cartID string, apply func(*domain.Cart) error) (*domain.Cart, error) {
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := apply(cart); err != nil {
		return nil, err
	}

	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		s.logger.Error("save cart failed", "cart_id", cartID, "error", err)
		return nil, storeErr("save cart", err)
	}
	return cart, nil
}

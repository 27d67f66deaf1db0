package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

// CartSource is the part of the cart service the checkout needs.
type CartSource interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

type OrderService struct {
	orders  port.OrderRepository
	carts   CartSource
	events  port.EventPublisher
	timeout time.Duration
	logger  *slog.Logger

	now   func() time.Time
	newID func() (string, error)
}

func NewOrderService(orders port.OrderRepository, carts CartSource, events port.EventPublisher, timeout time.Duration, logger *slog.Logger) *OrderService {
	if events == nil {
		events = port.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		orders:  orders,
		carts:   carts,
		events:  events,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
		newID:   newOrderID,
	}
}

func newOrderID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Checkout submits the session cart as an order and empties the cart once the
// order is stored.
func (s *OrderService) Checkout(ctx context.Context, cartID string, in domain.CheckoutInput) (domain.Order, error) {
	if err := in.Validate(); err != nil {
		return domain.Order{}, err
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.SubmitOrder(ctx, in, cart.Items())
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.carts.Clear(ctx, cartID); err != nil {
		// the order is already stored; a stale cart is the lesser problem
		s.logger.Warn("cart not cleared after checkout", "cart_id", cartID, "order_id", order.ID, "error", err)
	}
	return order, nil
}

// SubmitOrder validates the input, materializes a pending order from the
// cart lines and appends it to the order store.
func (s *OrderService) SubmitOrder(ctx context.Context, in domain.CheckoutInput, lines []domain.CartLineItem) (domain.Order, error) {
	id, err := s.newID()
	if err != nil {
		return domain.Order{}, fmt.Errorf("generate order id: %w", err)
	}

	order, err := domain.NewOrder(id, s.now().UTC(), in, lines)
	if err != nil {
		return domain.Order{}, err
	}

	storeCtx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	if err := s.orders.CreateOrder(storeCtx, order); err != nil {
		s.logger.Error("store order failed", "order_id", order.ID, "error", err)
		return domain.Order{}, storeErr("create order", err)
	}

	s.logger.Info("order submitted",
		"order_id", order.ID,
		"items", len(order.Items),
		"total", order.TotalPrice.StringFixed(2))

	if err := s.events.OrderSubmitted(ctx, order); err != nil {
		s.logger.Warn("publish order submitted failed", "order_id", order.ID, "error", err)
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, storeErr("get order", err)
	}
	return order, nil
}

// UpdateStatus moves an order to any known status. Transitions are not
// restricted to the forward lifecycle.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, status)
	}

	storeCtx, cancel := boundedContext(ctx, s.timeout)
	defer cancel()

	order, err := s.orders.UpdateOrderStatus(storeCtx, id, status)
	if err != nil {
		s.logger.Warn("update order status failed", "order_id", id, "status", status, "error", err)
		return domain.Order{}, storeErr("update order status", err)
	}

	s.logger.Info("order status updated", "order_id", id, "status", status)

	if err := s.events.OrderStatusChanged(ctx, order); err != nil {
		s.logger.Warn("publish status change failed", "order_id", id, "error", err)
	}
	return order, nil
}

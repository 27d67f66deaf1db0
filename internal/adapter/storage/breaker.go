package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

// BreakerStore fails fast while the wrapped store keeps erroring, instead of
// letting every request wait for its own timeout.
type BreakerStore struct {
	next port.Storage
	cb   *gobreaker.CircuitBreaker[any]
}

type BreakerSettings struct {
	Name string
	// MaxFailures consecutive failures open the breaker
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

func NewBreakerStore(next port.Storage, st BreakerSettings) *BreakerStore {
	if st.MaxFailures == 0 {
		st.MaxFailures = 5
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("store circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// caller mistakes are not store failures
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return execute(b, func() ([]domain.Product, error) { return b.next.ListProducts(ctx) })
}

func (b *BreakerStore) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return execute(b, func() (domain.Product, error) { return b.next.GetProduct(ctx, id) })
}

func (b *BreakerStore) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	return execute(b, func() (domain.Product, error) { return b.next.CreateProduct(ctx, product) })
}

func (b *BreakerStore) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	return execute(b, func() (domain.Product, error) { return b.next.UpdateProduct(ctx, id, patch) })
}

func (b *BreakerStore) DeleteProduct(ctx context.Context, id string) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.next.DeleteProduct(ctx, id) })
	return err
}

func (b *BreakerStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return execute(b, func() ([]domain.Order, error) { return b.next.ListOrders(ctx) })
}

func (b *BreakerStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return execute(b, func() (domain.Order, error) { return b.next.GetOrder(ctx, id) })
}

func (b *BreakerStore) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.next.CreateOrder(ctx, order) })
	return err
}

func (b *BreakerStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	return execute(b, func() (domain.Order, error) { return b.next.UpdateOrderStatus(ctx, id, status) })
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func (b *BreakerStore) Close() error {
	return b.next.Close()
}

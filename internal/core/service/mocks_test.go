package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

var errStoreDown = errors.New("store unavailable")

// Mock CatalogRepository
type mockCatalogRepo struct {
	mu       sync.Mutex
	products []domain.Product
	nextID   int
	fail     bool
	lists    int
}

func newMockCatalogRepo(products ...domain.Product) *mockCatalogRepo {
	m := &mockCatalogRepo{nextID: 100}
	m.products = append(m.products, products...)
	return m
}

func (m *mockCatalogRepo) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.fail {
		return nil, errStoreDown
	}
	return append([]domain.Product(nil), m.products...), nil
}

func (m *mockCatalogRepo) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

func (m *mockCatalogRepo) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return domain.Product{}, errStoreDown
	}
	m.nextID++
	p.ID = strconv.Itoa(m.nextID)
	m.products = append(m.products, p)
	return p, nil
}

func (m *mockCatalogRepo) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return domain.Product{}, errStoreDown
	}
	for i, p := range m.products {
		if p.ID == id {
			updated, err := patch.Apply(p)
			if err != nil {
				return domain.Product{}, err
			}
			m.products[i] = updated
			return updated, nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

func (m *mockCatalogRepo) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockCatalogRepo) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Mock OrderRepository
type mockOrderRepo struct {
	mu     sync.Mutex
	orders []domain.Order
	fail   bool
	writes int
}

func (m *mockOrderRepo) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStoreDown
	}
	return append([]domain.Order(nil), m.orders...), nil
}

func (m *mockOrderRepo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *mockOrderRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	m.writes++
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockOrderRepo) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return domain.Order{}, errStoreDown
	}
	for i, o := range m.orders {
		if o.ID == id {
			m.writes++
			m.orders[i].Status = status
			return m.orders[i], nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

// Mock CartRepository
type mockCartRepo struct {
	mu        sync.Mutex
	carts     map[string]domain.Cart
	failSave  bool
	failClear bool
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]domain.Cart)}
}

func (m *mockCartRepo) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return nil, port.ErrCartNotFound
	}
	c.Lines = append([]domain.CartLineItem(nil), c.Lines...)
	return &c, nil
}

func (m *mockCartRepo) SaveCart(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errStoreDown
	}
	c := *cart
	c.Lines = append([]domain.CartLineItem(nil), cart.Lines...)
	m.carts[cart.ID] = c
	return nil
}

func (m *mockCartRepo) DeleteCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClear {
		return errStoreDown
	}
	delete(m.carts, cartID)
	return nil
}

// recordingPublisher remembers published events
type recordingPublisher struct {
	mu        sync.Mutex
	submitted []string
	changed   []string
	fail      bool
}

func (p *recordingPublisher) OrderSubmitted(ctx context.Context, order domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.submitted = append(p.submitted, order.ID)
	return nil
}

func (p *recordingPublisher) OrderStatusChanged(ctx context.Context, order domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.changed = append(p.changed, order.ID+":"+string(order.Status))
	return nil
}

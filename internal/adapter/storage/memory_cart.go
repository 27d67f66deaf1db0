package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

type cartEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCartStore keeps session carts in process memory for deployments
// without Redis. Carts are stored serialized so callers never share state
// with the store, and expire like the Redis variant.
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string]cartEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCartStore(ttl time.Duration) *MemoryCartStore {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &MemoryCartStore{
		carts: make(map[string]cartEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *MemoryCartStore) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	entry, ok := m.carts[cartID]
	if ok && m.now().After(entry.expiresAt) {
		delete(m.carts, cartID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, port.ErrCartNotFound
	}

	var cart domain.Cart
	if err := json.Unmarshal(entry.data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}

func (m *MemoryCartStore) SaveCart(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.carts[cart.ID] = cartEntry{data: data, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryCartStore) DeleteCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, cartID)
	return nil
}

func (m *MemoryCartStore) sweepLocked() {
	now := m.now()
	for id, entry := range m.carts {
		if now.After(entry.expiresAt) {
			delete(m.carts, id)
		}
	}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

const (
	productsKey    = "biosalim:products"
	ordersKey      = "biosalim:orders"
	cartKeyPrefix  = "cart:"
	defaultCartTTL = 24 * time.Hour
	maxTxRetries   = 5
)

var ErrTxConflict = errors.New("too many concurrent writers")

// RedisAdapter is the key-value persistence variant. Products and orders each
// live in one slot holding a JSON array; every write is a WATCH/MULTI
// read-modify-write of the whole slot.
type RedisAdapter struct {
	client  *redis.Client
	cartTTL time.Duration
	now     func() time.Time
}

func NewRedisAdapter(client *redis.Client, cartTTL time.Duration) *RedisAdapter {
	if cartTTL <= 0 {
		cartTTL = defaultCartTTL
	}
	return &RedisAdapter{client: client, cartTTL: cartTTL, now: time.Now}
}

func (r *RedisAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	records, err := loadSlot[productRecord](ctx, r.client, productsKey)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(records))
	for _, rec := range records {
		products = append(products, rec.toDomain())
	}
	return products, nil
}

func (r *RedisAdapter) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	records, err := loadSlot[productRecord](ctx, r.client, productsKey)
	if err != nil {
		return domain.Product{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec.toDomain(), nil
		}
	}
	return domain.Product{}, domain.ErrNotFound
}

func (r *RedisAdapter) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Product{}, fmt.Errorf("generate product id: %w", err)
	}
	now := r.now().UTC()
	product.ID = id.String()
	product.CreatedAt = now
	product.UpdatedAt = now

	err = updateSlot(ctx, r.client, productsKey, func(records []productRecord) ([]productRecord, bool, error) {
		return append(records, toProductRecord(product)), true, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r *RedisAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	var updated domain.Product
	err := updateSlot(ctx, r.client, productsKey, func(records []productRecord) ([]productRecord, bool, error) {
		for i, rec := range records {
			if rec.ID != id {
				continue
			}
			merged, err := patch.Apply(rec.toDomain())
			if err != nil {
				return nil, false, err
			}
			merged.UpdatedAt = r.now().UTC()
			records[i] = toProductRecord(merged)
			updated = merged
			return records, true, nil
		}
		return nil, false, domain.ErrNotFound
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// DeleteProduct is a no-op when the product is already gone.
func (r *RedisAdapter) DeleteProduct(ctx context.Context, id string) error {
	return updateSlot(ctx, r.client, productsKey, func(records []productRecord) ([]productRecord, bool, error) {
		for i, rec := range records {
			if rec.ID == id {
				return append(records[:i], records[i+1:]...), true, nil
			}
		}
		return nil, false, nil
	})
}

func (r *RedisAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	records, err := loadSlot[orderRecord](ctx, r.client, ordersKey)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, rec.toDomain())
	}
	return orders, nil
}

func (r *RedisAdapter) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	records, err := loadSlot[orderRecord](ctx, r.client, ordersKey)
	if err != nil {
		return domain.Order{}, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec.toDomain(), nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (r *RedisAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	return updateSlot(ctx, r.client, ordersKey, func(records []orderRecord) ([]orderRecord, bool, error) {
		return append(records, toOrderRecord(order)), true, nil
	})
}

func (r *RedisAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	var updated domain.Order
	err := updateSlot(ctx, r.client, ordersKey, func(records []orderRecord) ([]orderRecord, bool, error) {
		for i := range records {
			if records[i].ID != id {
				continue
			}
			o := records[i].toDomain()
			o.Status = status
			o.UpdatedAt = r.now().UTC()
			records[i] = toOrderRecord(o)
			updated = o
			return records, true, nil
		}
		return nil, false, domain.ErrNotFound
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (r *RedisAdapter) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+cartID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &cart, nil
}

// SaveCart stores the cart and restarts its expiry.
func (r *RedisAdapter) SaveCart(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, cartKeyPrefix+cart.ID, data, r.cartTTL).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) DeleteCart(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, cartKeyPrefix+cartID).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) Close() error {
	return r.client.Close()
}

func loadSlot[T any](ctx context.Context, rdb redis.Cmdable, key string) ([]T, error) {
	data, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return decodeSlot[T](key, data)
}

func decodeSlot[T any](key string, data []byte) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return records, nil
}

// updateSlot runs fn against the current slot contents under WATCH and
// writes the result in a MULTI block. fn reports whether anything changed;
// unchanged slots are not rewritten. The transaction is retried when another
// writer touched the slot in between.
func updateSlot[T any](ctx context.Context, client *redis.Client, key string, fn func([]T) ([]T, bool, error)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis get %s: %w", key, err)
		}
		records, err := decodeSlot[T](key, data)
		if err != nil {
			return err
		}

		records, changed, err := fn(records)
		if err != nil || !changed {
			return err
		}

		out, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", key, ErrTxConflict)
}

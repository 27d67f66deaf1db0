package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rl1809/biosalim/internal/core/domain"
)

type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// SQLAdapter is the tabular persistence variant: one products table keyed
// by an auto-increment id, plus orders and order_items. The statements only
// use syntax shared by MySQL and SQLite.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLAdapter) Dialect() Dialect {
	return s.dialect
}

const productColumns = `id, name, description, price, stock, weight, category, image, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p                domain.Product
		id               int64
		category         string
		created, updated int64
	)
	err := row.Scan(&id, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Weight, &category, &p.Image, &created, &updated)
	if err != nil {
		return domain.Product{}, err
	}
	p.ID = strconv.FormatInt(id, 10)
	p.Category = domain.Category(category)
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}

func (s *SQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *SQLAdapter) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.getProduct(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLAdapter) getProduct(ctx context.Context, q queryer, id string) (domain.Product, error) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.Product{}, domain.ErrNotFound
	}

	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (s *SQLAdapter) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO products (name, description, price, stock, weight, category, image, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.Name, product.Description, product.Price, product.Stock, product.Weight,
		string(product.Category), product.Image, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Product{}, fmt.Errorf("last insert id: %w", err)
	}

	product.ID = strconv.FormatInt(id, 10)
	product.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	product.UpdatedAt = product.CreatedAt
	return product, nil
}

func (s *SQLAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getProduct(ctx, tx, id)
	if err != nil {
		return domain.Product{}, err
	}

	merged, err := patch.Apply(current)
	if err != nil {
		return domain.Product{}, err
	}
	merged.UpdatedAt = time.UnixMilli(s.now().UnixMilli()).UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, stock = ?, weight = ?, category = ?, image = ?, updated_at = ?
		WHERE id = ?`,
		merged.Name, merged.Description, merged.Price, merged.Stock, merged.Weight,
		string(merged.Category), merged.Image, merged.UpdatedAt.UnixMilli(), id,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Product{}, fmt.Errorf("commit: %w", err)
	}
	return merged, nil
}

// DeleteProduct is a no-op when the product is already gone.
func (s *SQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, key); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

const orderColumns = `id, customer_name, phone, address, notes, total_price, status, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                domain.Order
		status           string
		created, updated int64
	)
	err := row.Scan(&o.ID, &o.CustomerName, &o.Phone, &o.Address, &o.Notes, &o.TotalPrice, &status, &created, &updated)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.UnixMilli(created).UTC()
	o.UpdatedAt = time.UnixMilli(updated).UTC()
	return o, nil
}

func (s *SQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	index := make(map[string]int)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items ORDER BY order_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID string
		var it domain.OrderItem
		if err := itemRows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return orders, itemRows.Err()
}

func (s *SQLAdapter) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// CreateOrder writes the order and its items in one transaction.
func (s *SQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_name, phone, address, notes, total_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.CustomerName, order.Phone, order.Address, order.Notes,
		order.TotalPrice, string(order.Status), order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, product_name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	// MySQL reports zero affected rows for unchanged values, so existence is
	// checked by reading the row back.
	return s.GetOrder(ctx, id)
}

func (s *SQLAdapter) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLAdapter) Close() error {
	return s.db.Close()
}

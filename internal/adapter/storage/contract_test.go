package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/biosalim/internal/core/domain"
	"github.com/rl1809/biosalim/internal/port"
)

// runStorageContract exercises behaviour every port.Storage implementation
// must share, whatever its layout.
func runStorageContract(t *testing.T, newStore func(t *testing.T) port.Storage) {
	t.Run("CreateAndListProducts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateProduct(ctx, farine())
		require.NoError(t, err)
		b, err := s.CreateProduct(ctx, couscous())
		require.NoError(t, err)

		assert.NotEmpty(t, a.ID)
		assert.NotEqual(t, a.ID, b.ID)
		assert.False(t, a.CreatedAt.IsZero())

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, a.ID, products[0].ID)
		assert.Equal(t, b.ID, products[1].ID)
		assert.Equal(t, "Farine de sorgho", products[0].Name)
		assert.True(t, products[0].Price.Equal(decimal.NewFromInt(25)), "got %s", products[0].Price)
		assert.Equal(t, domain.CategoryFlour, products[0].Category)
		assert.Equal(t, "1kg", products[0].Weight)
		assert.Equal(t, 50, products[0].Stock)
	})

	t.Run("GetProduct", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateProduct(ctx, farine())
		require.NoError(t, err)

		got, err := s.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Name, got.Name)

		_, err = s.GetProduct(ctx, "424242")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.GetProduct(ctx, "not-an-id")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UpdateProductMerges", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateProduct(ctx, farine())
		require.NoError(t, err)

		price := decimal.RequireFromString("27.50")
		updated, err := s.UpdateProduct(ctx, created.ID, domain.ProductPatch{Price: &price})
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "Farine de sorgho", updated.Name)
		assert.True(t, updated.Price.Equal(price))

		got, err := s.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(price), "got %s", got.Price)
		assert.Equal(t, 50, got.Stock)
	})

	t.Run("UpdateProductNotFound", func(t *testing.T) {
		s := newStore(t)
		name := "ghost"

		_, err := s.UpdateProduct(context.Background(), "999999", domain.ProductPatch{Name: &name})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("UpdateProductInvalidPatch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.CreateProduct(ctx, farine())
		require.NoError(t, err)

		negative := decimal.NewFromInt(-5)
		_, err = s.UpdateProduct(ctx, created.ID, domain.ProductPatch{Price: &negative})
		assert.ErrorIs(t, err, domain.ErrValidation)

		got, err := s.GetProduct(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(decimal.NewFromInt(25)))
	})

	t.Run("SubCentPriceRejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := farine()
		p.Price = decimal.RequireFromString("12.345")
		_, err := s.CreateProduct(ctx, p)
		assert.ErrorIs(t, err, domain.ErrValidation)

		created, err := s.CreateProduct(ctx, couscous())
		require.NoError(t, err)
		price := decimal.RequireFromString("1.005")
		_, err = s.UpdateProduct(ctx, created.ID, domain.ProductPatch{Price: &price})
		assert.ErrorIs(t, err, domain.ErrValidation)

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.True(t, products[0].Price.Equal(decimal.NewFromInt(30)))
	})

	t.Run("CentPricesKeepOrderTotal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := farine()
		p.Price = decimal.RequireFromString("12.35")
		created, err := s.CreateProduct(ctx, p)
		require.NoError(t, err)

		id, err := uuid.NewV7()
		require.NoError(t, err)
		order, err := domain.NewOrder(id.String(), time.Now().UTC(), domain.CheckoutInput{
			Name: "Karim", Phone: "0611", Address: "Fès",
		}, []domain.CartLineItem{{ProductID: created.ID, Name: created.Name, UnitPrice: created.Price, Quantity: 3}})
		require.NoError(t, err)
		require.NoError(t, s.CreateOrder(ctx, order))

		got, err := s.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, it := range got.Items {
			sum = sum.Add(it.Subtotal())
		}
		assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("37.05")), "got %s", got.TotalPrice)
		assert.True(t, got.TotalPrice.Equal(sum), "total %s != items %s", got.TotalPrice, sum)
	})

	t.Run("DeleteProductAbsentIsNoop", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateProduct(ctx, farine())
		require.NoError(t, err)
		b, err := s.CreateProduct(ctx, couscous())
		require.NoError(t, err)

		require.NoError(t, s.DeleteProduct(ctx, a.ID))
		require.NoError(t, s.DeleteProduct(ctx, a.ID))
		require.NoError(t, s.DeleteProduct(ctx, "777777"))
		require.NoError(t, s.DeleteProduct(ctx, "garbage"))

		products, err := s.ListProducts(ctx)
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, b.ID, products[0].ID)
	})

	t.Run("CreateAndReadOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		order := sampleOrder(t, time.Now())
		require.NoError(t, s.CreateOrder(ctx, order))

		got, err := s.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.CustomerName, got.CustomerName)
		assert.Equal(t, order.Phone, got.Phone)
		assert.Equal(t, order.Address, got.Address)
		assert.Equal(t, order.Notes, got.Notes)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
		assert.True(t, got.TotalPrice.Equal(decimal.NewFromInt(80)), "got %s", got.TotalPrice)
		assert.Equal(t, order.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
		require.Len(t, got.Items, 2)
		assert.Equal(t, "A", got.Items[0].ProductID)
		assert.Equal(t, "Farine de sorgho", got.Items[0].ProductName)
		assert.Equal(t, 2, got.Items[0].Quantity)
		assert.True(t, got.Items[0].UnitPrice.Equal(decimal.NewFromInt(25)))
		assert.Equal(t, "B", got.Items[1].ProductID)

		_, err = s.GetOrder(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListOrdersInCreationOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Now()

		var ids []string
		for i := 0; i < 3; i++ {
			o := sampleOrder(t, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, s.CreateOrder(ctx, o))
			ids = append(ids, o.ID)
		}

		orders, err := s.ListOrders(ctx)
		require.NoError(t, err)
		require.Len(t, orders, 3)
		for i, o := range orders {
			assert.Equal(t, ids[i], o.ID)
			assert.Len(t, o.Items, 2)
		}
	})

	t.Run("UpdateOrderStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		order := sampleOrder(t, time.Now())
		require.NoError(t, s.CreateOrder(ctx, order))

		for _, status := range []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusPaid} {
			updated, err := s.UpdateOrderStatus(ctx, order.ID, status)
			require.NoError(t, err)
			assert.Equal(t, status, updated.Status)

			got, err := s.GetOrder(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status)
			assert.Len(t, got.Items, 2)
			assert.True(t, got.TotalPrice.Equal(order.TotalPrice))
		}

		_, err := s.UpdateOrderStatus(ctx, "missing", domain.OrderStatusPaid)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ConcurrentOrderAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		// each retry is lost only to another writer's commit, so this many
		// writers always fit inside the retry budget
		n := maxTxRetries

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.CreateOrder(ctx, sampleOrder(t, time.Now().Add(time.Duration(i)*time.Millisecond)))
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}

		orders, err := s.ListOrders(ctx)
		require.NoError(t, err)
		assert.Len(t, orders, n)
	})
}

func farine() domain.Product {
	return domain.Product{
		Name:        "Farine de sorgho",
		Description: "Farine de sorgho bio cultivée dans les montagnes de Chefchaouen",
		Price:       decimal.NewFromInt(25),
		Stock:       50,
		Weight:      "1kg",
		Category:    domain.CategoryFlour,
	}
}

func couscous() domain.Product {
	return domain.Product{
		Name:     "Couscous de sorgho",
		Price:    decimal.NewFromInt(30),
		Stock:    35,
		Weight:   "500g",
		Category: domain.CategoryCouscous,
	}
}

func sampleOrder(t *testing.T, at time.Time) domain.Order {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)

	order, err := domain.NewOrder(id.String(), at.UTC(), domain.CheckoutInput{
		Name:    "Sarah Benali",
		Phone:   "0600000000",
		Address: "Chefchaouen",
		Notes:   fmt.Sprintf("order at %d", at.UnixNano()),
	}, []domain.CartLineItem{
		{ProductID: "A", Name: "Farine de sorgho", UnitPrice: decimal.NewFromInt(25), Quantity: 2},
		{ProductID: "B", Name: "Couscous de sorgho", UnitPrice: decimal.NewFromInt(30), Quantity: 1},
	})
	require.NoError(t, err)
	return order
}

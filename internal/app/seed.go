package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/biosalim/internal/core/domain"
)

// SampleProducts is the launch catalog of the cooperative.
func SampleProducts() []domain.Product {
	return []domain.Product{
		{
			Name:        "Farine de sorgho",
			Description: "Farine de sorgho bio cultivée dans les montagnes de Chefchaouen",
			Price:       decimal.NewFromInt(25),
			Stock:       50,
			Weight:      "1kg",
			Category:    domain.CategoryFlour,
		},
		{
			Name:        "Couscous de sorgho",
			Description: "Couscous traditionnel à base de sorgho, savoureux et nutritif",
			Price:       decimal.NewFromInt(30),
			Stock:       35,
			Weight:      "500g",
			Category:    domain.CategoryCouscous,
		},
		{
			Name:        "Pâtes artisanales au sorgho",
			Description: "Pâtes artisanales fabriquées avec amour par les femmes de Bio Salim",
			Price:       decimal.NewFromInt(28),
			Stock:       40,
			Weight:      "400g",
			Category:    domain.CategoryPasta,
		},
	}
}

type SeedResult struct {
	Products int
	Orders   int
}

// SeedIfEmpty fills an empty catalog with SampleProducts and an empty order
// book with two demonstration orders referencing them. Non-empty collections
// are left alone.
func (a *App) SeedIfEmpty(ctx context.Context) (SeedResult, error) {
	var res SeedResult

	products, err := a.Catalog.List(ctx, "")
	if err != nil {
		return res, err
	}
	if len(products) == 0 {
		for _, p := range SampleProducts() {
			created, err := a.Catalog.Create(ctx, p)
			if err != nil {
				return res, fmt.Errorf("seed product %q: %w", p.Name, err)
			}
			products = append(products, created)
			res.Products++
		}
	}

	orders, err := a.Orders.List(ctx)
	if err != nil {
		return res, err
	}
	if len(orders) > 0 || len(products) < 3 {
		return res, nil
	}

	now := time.Now().UTC()
	samples := []struct {
		in     domain.CheckoutInput
		lines  []domain.CartLineItem
		status domain.OrderStatus
		at     time.Time
	}{
		{
			in:     domain.CheckoutInput{Name: "Ahmed Mansouri", Phone: "0600000002", Address: "Chefchaouen"},
			lines:  []domain.CartLineItem{lineFor(products[1], 1), lineFor(products[2], 1)},
			status: domain.OrderStatusPaid,
			at:     now.Add(-24 * time.Hour),
		},
		{
			in:     domain.CheckoutInput{Name: "Sarah Benali", Phone: "0600000001", Address: "Chefchaouen"},
			lines:  []domain.CartLineItem{lineFor(products[0], 2)},
			status: domain.OrderStatusPending,
			at:     now,
		},
	}

	for _, s := range samples {
		id, err := uuid.NewV7()
		if err != nil {
			return res, err
		}
		order, err := domain.NewOrder(id.String(), s.at, s.in, s.lines)
		if err != nil {
			return res, err
		}
		order.Status = s.status
		if err := a.store.CreateOrder(ctx, order); err != nil {
			return res, fmt.Errorf("seed order for %s: %w", s.in.Name, err)
		}
		res.Orders++
	}
	return res, nil
}

func lineFor(p domain.Product, qty int) domain.CartLineItem {
	return domain.CartLineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Weight:    p.Weight,
		Image:     p.Image,
		Quantity:  qty,
	}
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
)

// OrderStatuses lists the lifecycle in display order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts the canonical names case-insensitively.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	for _, known := range OrderStatuses {
		if strings.EqualFold(strings.TrimSpace(raw), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, raw)
}

type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

func (oi OrderItem) Subtotal() decimal.Decimal {
	return oi.UnitPrice.Mul(decimal.NewFromInt(int64(oi.Quantity)))
}

type Order struct {
	ID           string
	CustomerName string
	Phone        string
	Address      string
	Notes        string
	Items        []OrderItem
	TotalPrice   decimal.Decimal
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CheckoutInput is the contact and delivery information a shopper submits.
type CheckoutInput struct {
	Name    string
	Phone   string
	Address string
	Notes   string
}

// Normalize trims every field.
func (in CheckoutInput) Normalize() CheckoutInput {
	return CheckoutInput{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
		Notes:   strings.TrimSpace(in.Notes),
	}
}

func (in CheckoutInput) Validate() error {
	in = in.Normalize()
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case in.Phone == "":
		return fmt.Errorf("%w: phone is required", ErrValidation)
	case in.Address == "":
		return fmt.Errorf("%w: address is required", ErrValidation)
	}
	return nil
}

// NewOrder materializes a pending order from a cart snapshot. The total is
// captured from the line items and is never recomputed afterwards.
func NewOrder(id string, now time.Time, in CheckoutInput, lines []CartLineItem) (Order, error) {
	if err := in.Validate(); err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}
	in = in.Normalize()

	items := make([]OrderItem, 0, len(lines))
	for _, li := range lines {
		items = append(items, OrderItem{
			ProductID:   li.ProductID,
			ProductName: li.Name,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
		})
	}

	return Order{
		ID:           id,
		CustomerName: in.Name,
		Phone:        in.Phone,
		Address:      in.Address,
		Notes:        in.Notes,
		Items:        items,
		TotalPrice:   sumLines(lines),
		Status:       OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

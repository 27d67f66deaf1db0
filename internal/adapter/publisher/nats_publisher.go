package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/rl1809/biosalim/internal/core/domain"
)

const (
	SubjectOrderSubmitted     = "orders.submitted"
	SubjectOrderStatusChanged = "orders.status_changed"
)

// conn is the slice of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSPublisher struct {
	nc conn
}

// Connect dials the NATS server and keeps reconnecting in the background if
// the link drops later.
func Connect(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("biosalim"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

type orderItemEvent struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type orderEvent struct {
	ID           string           `json:"id"`
	CustomerName string           `json:"customer_name"`
	Phone        string           `json:"phone"`
	Address      string           `json:"address"`
	Notes        string           `json:"notes,omitempty"`
	Items        []orderItemEvent `json:"items"`
	TotalPrice   decimal.Decimal  `json:"total_price"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func newOrderEvent(o domain.Order) orderEvent {
	items := make([]orderItemEvent, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemEvent{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return orderEvent{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Phone:        o.Phone,
		Address:      o.Address,
		Notes:        o.Notes,
		Items:        items,
		TotalPrice:   o.TotalPrice,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func (p *NATSPublisher) OrderSubmitted(ctx context.Context, order domain.Order) error {
	return p.publish(ctx, SubjectOrderSubmitted, order)
}

func (p *NATSPublisher) OrderStatusChanged(ctx context.Context, order domain.Order) error {
	return p.publish(ctx, SubjectOrderStatusChanged, order)
}

// publish is fire-and-forget on the wire; the context is only checked up front.
func (p *NATSPublisher) publish(ctx context.Context, subject string, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	data, err := json.Marshal(newOrderEvent(order))
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

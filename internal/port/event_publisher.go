package port

import (
	"context"

	"github.com/rl1809/biosalim/internal/core/domain"
)

type EventPublisher interface {
	OrderSubmitted(ctx context.Context, order domain.Order) error
	OrderStatusChanged(ctx context.Context, order domain.Order) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) OrderSubmitted(context.Context, domain.Order) error     { return nil }
func (NopPublisher) OrderStatusChanged(context.Context, domain.Order) error { return nil }

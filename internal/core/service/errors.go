package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/biosalim/internal/core/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

const defaultStoreTimeout = 5 * time.Second

// storeErr keeps not-found and validation failures recognisable and turns
// everything else into a retryable persistence error.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func boundedContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/brandcart/internal/resilience"
)

// GuardedOrders retries transient order creation failures behind a circuit
// breaker. Retries resend the same payload, so the order number lets the
// downstream deduplicate.
type GuardedOrders struct {
	Next        OrderCreator
	Breaker     *resilience.Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	Logger      zerolog.Logger
	sleep       func(context.Context, time.Duration) error
}

// CreateOrder implements OrderCreator.
func (g *GuardedOrders) CreateOrder(ctx context.Context, payload OrderPayload) (string, error) {
	if g == nil || g.Next == nil {
		return "", errors.New("order creator not configured")
	}
	attempt := 0
	var orderID string
	err := resilience.Do(ctx, resilience.Policy{
		Breaker:     g.Breaker,
		MaxAttempts: g.MaxAttempts,
		BaseBackoff: g.BaseBackoff,
		Jitter:      0.2,
		Sleep:       g.sleep,
	}, func(ctx context.Context) error {
		attempt++
		id, err := g.Next.CreateOrder(ctx, payload)
		if err != nil {
			g.Logger.Warn().Err(err).Str("brand_id", payload.BrandID).Str("order_number", payload.OrderNumber).Int("attempt", attempt).Msg("order creation attempt failed")
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create order %s: %w", payload.OrderNumber, err)
	}
	return orderID, nil
}

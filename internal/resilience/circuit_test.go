package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/brandcart/internal/resilience"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestBreakerTransitions(t *testing.T) {
	clk := &clock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	breaker := resilience.NewBreaker("orders", 2, 0.5, time.Minute).WithClock(clk.now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")

	clk.t = clk.t.Add(time.Minute)
	require.True(t, breaker.Allow(ctx), "breaker should move to half-open after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clk := &clock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	breaker := resilience.NewBreaker("", 1, 1, time.Second).WithClock(clk.now)
	ctx := context.Background()

	breaker.Report(ctx, false)
	clk.t = clk.t.Add(time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := resilience.Do(context.Background(), resilience.Policy{MaxAttempts: 3, Sleep: noSleep}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := resilience.Do(context.Background(), resilience.Policy{MaxAttempts: 5, Sleep: noSleep}, func(context.Context) error {
		calls++
		return fmt.Errorf("rejected: %w", resilience.ErrPermanent)
	})
	require.ErrorIs(t, err, resilience.ErrPermanent)
	require.Equal(t, 1, calls)
}

func TestDoRefusedByOpenBreaker(t *testing.T) {
	breaker := resilience.NewBreaker("orders", 1, 1, time.Hour)
	calls := 0
	err := resilience.Do(context.Background(), resilience.Policy{Breaker: breaker, MaxAttempts: 3, Sleep: noSleep}, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 1, calls)
}

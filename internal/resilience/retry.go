package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("resilience: permanent failure")

// Policy controls Do.
type Policy struct {
	Breaker     *Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Sleep       func(context.Context, time.Duration) error
}

// Backoff returns an exponential backoff for the attempt. Jitter is a
// fraction of the delay, e.g. 0.2 for 20%.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

// Do runs fn until it succeeds, returns an error wrapping ErrPermanent, the
// attempts run out or the breaker refuses. Each outcome is reported to the
// breaker.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if p.Breaker != nil && !p.Breaker.Allow(ctx) {
			if lastErr != nil {
				return errors.Join(ErrOpenCircuit, lastErr)
			}
			return ErrOpenCircuit
		}
		err := fn(ctx)
		if p.Breaker != nil {
			p.Breaker.Report(ctx, err == nil)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrPermanent) || attempt == attempts {
			break
		}
		if err := sleep(ctx, Backoff(p.BaseBackoff, attempt, p.Jitter)); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

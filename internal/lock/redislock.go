// Package lock serialises checkout submissions of one cart across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the lock is still held when the context ends.
var ErrBusy = errors.New("lock: held by another submission")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// CheckoutKey is the lock key guarding submission of one cart session.
func CheckoutKey(sessionID string) string {
	return "lock:checkout:" + sessionID
}

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	Client       *redis.Client
	RetryBackoff time.Duration
}

// WithLock runs fn while holding key. The lock is released when fn returns,
// including on error, and only if this caller still owns it.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.Client == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %v", ErrBusy, ctxErr)
			}
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.Client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.Client.Del(ctx, key).Err()
		}
	}
}

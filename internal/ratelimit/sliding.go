package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter is a sliding window limiter backed by Redis sorted sets. A nil
// client or a non-positive Max or Window allows everything.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Window time.Duration
	Max    int
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow registers an attempt for key and reports whether it fits the window.
func (l Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	if l.Client == nil || l.Max <= 0 || l.Window <= 0 {
		return Decision{Allowed: true, Remaining: l.Max, Reset: now.Add(l.Window)}, nil
	}

	cutoff := float64(now.Add(-l.Window).UnixNano())
	redisKey := l.Prefix + key

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: key + ":" + uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Reset: now.Add(l.Window)}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	current := int(count.Val())
	return Decision{
		Allowed:   current <= l.Max,
		Remaining: max(l.Max-current, 0),
		Reset:     now.Add(l.Window),
	}, nil
}

package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/brandcart/internal/lock"
)

func newLocker(t *testing.T) (*miniredis.Miniredis, lock.Locker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, lock.Locker{Client: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerialisesSubmissions(t *testing.T) {
	_, locker := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	key := lock.CheckoutKey("cart-1")

	go func() {
		_ = locker.WithLock(ctx, key, 200*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		_ = locker.WithLock(ctx, key, 200*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockReleasesOnError(t *testing.T) {
	mr, locker := newLocker(t)
	boom := errors.New("boom")
	key := lock.CheckoutKey("cart-2")

	err := locker.WithLock(context.Background(), key, time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists(key))
}

func TestWithLockReportsBusy(t *testing.T) {
	mr, locker := newLocker(t)
	key := lock.CheckoutKey("cart-3")
	require.NoError(t, mr.Set(key, "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, key, time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrBusy)

	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

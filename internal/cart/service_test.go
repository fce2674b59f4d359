package cart_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/brandcart/internal/cart"
	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/common"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/ratelimit"
)

var fixedNow = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func wholesale(id, brandID, price string, perCarton int) catalog.Product {
	p := decimal.RequireFromString(price)
	return catalog.Product{ID: id, BrandID: brandID, Name: id, Price: &catalog.LegacyPrice{Wholesale: &p}, ItemsPerCarton: perCarton}
}

func newService(repo cart.Repository, codes ...discount.Definition) *cart.Service {
	return &cart.Service{
		Repo: repo,
		Codes: &discount.Service{
			Store: discount.NewMemoryStore(codes...),
			Now:   func() time.Time { return fixedNow },
		},
		TTL: time.Hour,
		Now: func() time.Time { return fixedNow },
	}
}

func TestServicePersistsToRedisWithTTL(t *testing.T) {
	mr, client := newRedis(t)
	svc := newService(cart.NewRedisRepository(client))
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "s1", wholesale("p1", "b1", "10", 6), 2)
	require.NoError(t, err)
	require.Len(t, sess.Items, 1)

	require.True(t, mr.Exists(cart.SessionKey("s1")))
	require.Equal(t, time.Hour, mr.TTL(cart.SessionKey("s1")))

	loaded, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	require.Equal(t, sess.Items[0].ID, loaded.Items[0].ID)
	require.True(t, decimal.NewFromInt(120).Equal(loaded.Items[0].Total()))

	mr.FastForward(2 * time.Hour)
	fresh, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, fresh.Items)
}

func TestServiceRejectsInvalidInput(t *testing.T) {
	svc := newService(cart.NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", wholesale("p1", "b1", "10", 6), 0)
	require.ErrorIs(t, err, cart.ErrInvalidInput)
	_, err = svc.AddItem(ctx, "s1", wholesale("p1", "", "10", 6), 1)
	require.ErrorIs(t, err, cart.ErrInvalidInput)
	_, err = svc.Get(ctx, " ")
	require.ErrorIs(t, err, cart.ErrInvalidInput)
}

func TestServiceApplyCodeLeavesCartUnchangedOnRejection(t *testing.T) {
	minimum := decimal.NewFromInt(1000)
	code := discount.Definition{
		ID: "d1", Code: "BIG", DiscountType: discount.TypePercentage,
		DiscountValue: decimal.NewFromInt(10), Active: true,
		Conditions: discount.Conditions{MinOrderValue: &minimum},
	}
	repo := cart.NewMemoryRepository()
	svc := newService(repo, code)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "s1", wholesale("p1", "b1", "10", 6), 2)
	require.NoError(t, err)

	_, _, err = svc.ApplyCode(ctx, "s1", "big", discount.Customer{}, "")
	require.ErrorIs(t, err, discount.ErrBelowMinimum)

	stored, err := repo.Load(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, stored.Applied)

	_, err = svc.AddItem(ctx, "s1", wholesale("p1", "b1", "10", 6), 20)
	require.NoError(t, err)
	sess, applied, err := svc.ApplyCode(ctx, "s1", "big", discount.Customer{}, "")
	require.NoError(t, err)
	require.Equal(t, "b1", applied.BrandID)
	require.Len(t, sess.Applied, 1)

	_, _, err = svc.ApplyCode(ctx, "s1", "BIG", discount.Customer{}, "b1")
	require.ErrorIs(t, err, discount.ErrAlreadyApplied)
}

func TestServiceApplyCodeThrottlesAttempts(t *testing.T) {
	_, client := newRedis(t)
	svc := newService(cart.NewMemoryRepository())
	svc.Attempts = ratelimit.Limiter{Client: client, Prefix: "codes:", Window: time.Minute, Max: 2, Now: func() time.Time { return fixedNow }}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := svc.ApplyCode(ctx, "s1", "NOPE", discount.Customer{}, "")
		require.ErrorIs(t, err, discount.ErrInvalidCode)
	}
	_, _, err := svc.ApplyCode(ctx, "s1", "NOPE", discount.Customer{}, "")
	require.ErrorIs(t, err, cart.ErrTooManyAttempts)
	require.Equal(t, "TOO_MANY_ATTEMPTS", common.CodeOf(err))

	_, _, err = svc.ApplyCode(ctx, "s2", "NOPE", discount.Customer{}, "")
	require.ErrorIs(t, err, discount.ErrInvalidCode)
}

func TestServiceMergeDeletesGuestCart(t *testing.T) {
	repo := cart.NewMemoryRepository()
	svc := newService(repo)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "guest", wholesale("p1", "b1", "10", 6), 4)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "acct", wholesale("p1", "b1", "10", 6), 1)
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, "acct", "guest")
	require.NoError(t, err)
	require.Equal(t, 4, merged.ItemCount())

	_, err = repo.Load(ctx, "guest")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestServiceUpdateAndClearBrands(t *testing.T) {
	svc := newService(cart.NewMemoryRepository())
	ctx := context.Background()

	sess, err := svc.AddItem(ctx, "s1", wholesale("p1", "b1", "10", 6), 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "s1", wholesale("p2", "b2", "10", 6), 2)
	require.NoError(t, err)

	sess, err = svc.UpdateQuantity(ctx, "s1", sess.Items[0].ID, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b2"}, sess.BrandIDs())

	sess, err = svc.ClearBrands(ctx, "s1", "b2")
	require.NoError(t, err)
	require.Empty(t, sess.Items)
}

package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/brandcart/internal/cart"
	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/checkout"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/events"
	"github.com/noah-isme/brandcart/internal/lock"
	"github.com/noah-isme/brandcart/internal/partition"
)

var fixedNow = time.Date(2025, 8, 4, 15, 0, 0, 0, time.UTC)

type stubOrders struct {
	mu       sync.Mutex
	fail     map[string]error
	payloads []checkout.OrderPayload
}

func (s *stubOrders) CreateOrder(_ context.Context, p checkout.OrderPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[p.BrandID]; err != nil {
		return "", err
	}
	s.payloads = append(s.payloads, p)
	return fmt.Sprintf("order-%d", len(s.payloads)), nil
}

type fixture struct {
	svc     *checkout.Service
	carts   *cart.Service
	orders  *stubOrders
	codes   *discount.MemoryStore
	events  *events.MemoryStore
	session string
}

func money(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func newFixture(t *testing.T, defs ...discount.Definition) *fixture {
	t.Helper()
	codes := discount.NewMemoryStore(defs...)
	discounts := &discount.Service{Store: codes, Now: func() time.Time { return fixedNow }}
	carts := &cart.Service{Repo: cart.NewMemoryRepository(), Codes: discounts, Now: func() time.Time { return fixedNow }}
	directory := catalog.NewMemoryDirectory(
		catalog.Brand{ID: "a", Name: "Alba", MOA: money("100")},
		catalog.Brand{ID: "b", Name: "Bloom", MOA: money("3000")},
		catalog.Brand{ID: "c", Name: "Cove", MOA: money("50")},
	)
	store := &events.MemoryStore{}
	orders := &stubOrders{fail: map[string]error{}}
	svc := &checkout.Service{
		Carts:       carts,
		Brands:      directory,
		Partitioner: &partition.Partitioner{Currency: "GBP"},
		Orders:      orders,
		Usage:       discounts,
		Events:      &events.Bus{Store: store},
		TaxRate:     checkout.DefaultTaxRate,
		Currency:    "GBP",
		Now:         func() time.Time { return fixedNow },
	}
	return &fixture{svc: svc, carts: carts, orders: orders, codes: codes, events: store, session: "sess-1"}
}

func (f *fixture) add(t *testing.T, productID, brandID, price string, perCarton, moq, cartons int) {
	t.Helper()
	p := catalog.Product{
		ID: productID, BrandID: brandID, Name: productID,
		Variants: []catalog.Variant{{ID: productID + "-v", Pricing: catalog.VariantPricing{B2B: &catalog.B2BPricing{
			WholesalePrice: money(price), UnitsPerCarton: perCarton, MinOrderQuantity: moq,
		}}}},
	}
	_, err := f.carts.AddItem(context.Background(), f.session, p, cartons)
	require.NoError(t, err)
}

func TestSubmitPartialCheckoutKeepsIneligibleBrand(t *testing.T) {
	f := newFixture(t, discount.Definition{
		ID: "d1", Code: "ALBA10", DiscountType: discount.TypePercentage,
		DiscountValue: decimal.NewFromInt(10), Active: true,
		Conditions: discount.Conditions{SpecificBrands: []string{"a"}},
	})
	ctx := context.Background()
	f.add(t, "pa", "a", "10", 12, 0, 1)
	f.add(t, "pb", "b", "2", 12, 100, 1)
	_, _, err := f.carts.ApplyCode(ctx, f.session, "alba10", discount.Customer{}, "")
	require.NoError(t, err)

	flow := checkout.NewFlow()
	review, err := f.svc.Review(ctx, flow, f.session, nil)
	require.NoError(t, err)
	require.Equal(t, checkout.StateReviewing, flow.State())
	require.Equal(t, []string{"a"}, review.Result.BrandIDs())
	require.Len(t, review.Result.Excluded, 1)
	require.Equal(t, "b", review.Result.Excluded[0].BrandID)
	require.True(t, decimal.NewFromInt(120).Equal(review.Result.Subtotal))
	require.True(t, decimal.NewFromInt(12).Equal(review.Result.TotalDiscounts))
	require.True(t, decimal.RequireFromString("21.6").Equal(review.Result.Tax))
	require.True(t, decimal.RequireFromString("129.6").Equal(review.Result.GrandTotal))

	res, err := f.svc.Submit(ctx, flow)
	require.NoError(t, err)
	require.Equal(t, checkout.StateCompleted, flow.State())
	require.Len(t, res.Created, 1)
	require.Equal(t, "a", res.Created[0].BrandID)
	require.Len(t, f.orders.payloads, 1)

	payload := f.orders.payloads[0]
	require.Equal(t, f.session, payload.SessionID)
	require.True(t, decimal.RequireFromString("129.6").Equal(payload.Total))
	require.Len(t, payload.Discounts, 1)
	require.Equal(t, "ALBA10", payload.Discounts[0].Code)

	remaining, err := f.carts.Get(ctx, f.session)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, remaining.BrandIDs())
	require.Empty(t, remaining.Applied)

	usages := f.codes.Usages()
	require.Len(t, usages, 1)
	require.Equal(t, "order-1", usages[0].OrderID)
	require.True(t, decimal.NewFromInt(12).Equal(usages[0].DiscountAmount))

	require.Len(t, f.events.Events(events.TopicOrderCreated), 1)
	require.Len(t, f.events.Events(events.TopicDiscountRedeemed), 1)
	require.Len(t, f.events.Events(events.TopicCheckoutCompleted), 1)
}

func TestSubmitMidBatchFailureKeepsCreatedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "pa", "a", "10", 12, 0, 1)
	f.add(t, "pc", "c", "5", 12, 0, 1)
	f.orders.fail["a"] = errors.New("order service unavailable")

	flow := checkout.NewFlow()
	_, err := f.svc.Review(ctx, flow, f.session, nil)
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, checkout.ErrPartialSubmission)
	require.Len(t, res.Created, 1)
	require.Equal(t, "c", res.Created[0].BrandID)
	require.Len(t, res.Failed, 1)
	require.Equal(t, "a", res.Failed[0].BrandID)

	require.Equal(t, checkout.StateReviewing, flow.State())
	snap, ok := flow.Snapshot()
	require.True(t, ok)
	require.Equal(t, []string{"a"}, snap.Result.BrandIDs())

	remaining, err := f.carts.Get(ctx, f.session)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, remaining.BrandIDs())
	require.Len(t, f.events.Events(events.TopicOrderFailed), 1)

	delete(f.orders.fail, "a")
	res, err = f.svc.Submit(ctx, flow)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	require.Equal(t, "a", res.Created[0].BrandID)
	require.Len(t, f.orders.payloads, 2)
	require.Equal(t, checkout.StateCompleted, flow.State())
	require.Empty(t, res.Cart.Items)
}

type failingSaves struct {
	cart.Repository
	mu   sync.Mutex
	fail error
}

func (r *failingSaves) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *failingSaves) Save(ctx context.Context, sess *cart.Session, ttl time.Duration) error {
	r.mu.Lock()
	err := r.fail
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.Save(ctx, sess, ttl)
}

func (f *fixture) failSaves() *failingSaves {
	repo := &failingSaves{Repository: f.carts.Repo}
	f.carts.Repo = repo
	return repo
}

func (s *stubOrders) brands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.payloads))
	for _, p := range s.payloads {
		out = append(out, p.BrandID)
	}
	return out
}

func TestSubmitClearFailureDoesNotReofferCreatedBrands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "pa", "a", "10", 12, 0, 1)
	f.add(t, "pc", "c", "5", 12, 0, 1)
	repo := f.failSaves()

	flow := checkout.NewFlow()
	review, err := f.svc.Review(ctx, flow, f.session, []string{"a"})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, review.Result.BrandIDs())

	repo.setFail(errors.New("redis down"))
	res, err := f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, checkout.ErrCartNotCleared)
	require.NotErrorIs(t, err, checkout.ErrPartialSubmission)
	require.Len(t, res.Created, 1)
	require.Empty(t, res.Failed)
	require.Equal(t, checkout.StateCompleted, flow.State())
	require.Len(t, f.events.Events(events.TopicCheckoutCompleted), 1)

	_, err = f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, checkout.ErrInvalidTransition)
	require.Equal(t, []string{"a"}, f.orders.brands())
}

func TestSubmitRetryAfterClearFailureOnlyOffersFailedBrands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "pa", "a", "10", 12, 0, 1)
	f.add(t, "pb", "b", "2", 12, 0, 1)
	f.add(t, "pc", "c", "5", 12, 0, 1)
	repo := f.failSaves()

	flow := checkout.NewFlow()
	review, err := f.svc.Review(ctx, flow, f.session, []string{"a", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, review.Result.BrandIDs())

	f.orders.fail["c"] = errors.New("order service unavailable")
	repo.setFail(errors.New("redis down"))
	res, err := f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, checkout.ErrPartialSubmission)
	require.Len(t, res.Created, 1)
	require.Equal(t, "a", res.Created[0].BrandID)

	require.Equal(t, checkout.StateReviewing, flow.State())
	snap, ok := flow.Snapshot()
	require.True(t, ok)
	require.Equal(t, []string{"c"}, snap.Allow)
	require.Equal(t, []string{"c"}, snap.Result.BrandIDs())

	delete(f.orders.fail, "c")
	repo.setFail(nil)
	res, err = f.svc.Submit(ctx, flow)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	require.Equal(t, "c", res.Created[0].BrandID)
	require.Equal(t, []string{"a", "c"}, f.orders.brands())
	require.Equal(t, checkout.StateCompleted, flow.State())
}

func TestSubmitNothingEligible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "pb", "b", "2", 12, 100, 1)

	flow := checkout.NewFlow()
	review, err := f.svc.Review(ctx, flow, f.session, nil)
	require.NoError(t, err)
	require.False(t, review.Result.AnyEligible)

	_, err = f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, checkout.ErrNothingEligible)
	require.Equal(t, checkout.StateReviewing, flow.State())
	require.Empty(t, f.orders.payloads)
}

func TestSubmitRejectsStaleReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "pa", "a", "10", 12, 0, 1)

	flow := checkout.NewFlow()
	_, err := f.svc.Review(ctx, flow, f.session, nil)
	require.NoError(t, err)

	tick := fixedNow.Add(time.Minute)
	f.carts.Now = func() time.Time { return tick }
	f.add(t, "pc", "c", "5", 12, 0, 1)

	_, err = f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, checkout.ErrReviewStale)
	require.Empty(t, f.orders.payloads)

	snap, ok := flow.Snapshot()
	require.True(t, ok)
	require.Equal(t, []string{"a", "c"}, snap.Result.BrandIDs())
}

func TestSubmitHoldsCheckoutLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.svc.Locker = lock.Locker{Client: client, RetryBackoff: 5 * time.Millisecond}
	f.svc.LockTTL = time.Second
	f.add(t, "pa", "a", "10", 12, 0, 1)

	flow := checkout.NewFlow()
	_, err = f.svc.Review(context.Background(), flow, f.session, nil)
	require.NoError(t, err)

	require.NoError(t, mr.Set(lock.CheckoutKey(f.session), "other"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = f.svc.Submit(ctx, flow)
	require.ErrorIs(t, err, lock.ErrBusy)
	require.Equal(t, checkout.StateReviewing, flow.State())

	mr.Del(lock.CheckoutKey(f.session))
	_, err = f.svc.Submit(context.Background(), flow)
	require.NoError(t, err)
	require.False(t, mr.Exists(lock.CheckoutKey(f.session)))
}

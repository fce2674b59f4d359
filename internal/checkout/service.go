package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/brandcart/internal/cart"
	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/events"
	"github.com/noah-isme/brandcart/internal/lock"
	"github.com/noah-isme/brandcart/internal/obs"
	"github.com/noah-isme/brandcart/internal/partition"
)

var (
	// ErrNothingEligible is returned when no brand of the review can check out.
	ErrNothingEligible = errors.New("checkout: no brand is eligible for checkout")
	// ErrReviewStale is returned when the cart changed after it was reviewed.
	ErrReviewStale = errors.New("checkout: cart changed since review")
	// ErrPartialSubmission wraps the failures of a submission where some brands failed.
	ErrPartialSubmission = errors.New("checkout: some orders could not be created")
	// ErrCartNotCleared is returned when every order was created but the
	// submitted brands could not be removed from the cart.
	ErrCartNotCleared = errors.New("checkout: orders created but cart not cleared")
)

// UsageRecorder settles discount code usage for created orders.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, usage discount.Usage) error
}

// Locker serialises submissions of one cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CreatedOrder reports an order created for a brand.
type CreatedOrder struct {
	BrandID     string          `json:"brandId"`
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	Total       decimal.Decimal `json:"total"`
}

// FailedOrder reports a brand whose order could not be created.
type FailedOrder struct {
	BrandID string `json:"brandId"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// SubmitResult is the outcome of a submission. Cart holds the cart after the
// submitted brands were cleared.
type SubmitResult struct {
	Created []CreatedOrder `json:"created"`
	Failed  []FailedOrder  `json:"failed"`
	Cart    *cart.Session  `json:"cart,omitempty"`
}

// Service coordinates review and per-brand order submission.
type Service struct {
	Carts       *cart.Service
	Brands      catalog.Directory
	Partitioner *partition.Partitioner
	Orders      OrderCreator
	Usage       UsageRecorder
	Events      *events.Bus
	Locker      Locker
	LockTTL     time.Duration
	TaxRate     decimal.Decimal
	Currency    string
	Logger      zerolog.Logger
	Now         func() time.Time
	Tracer      trace.Tracer
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}
	return otel.Tracer("github.com/noah-isme/brandcart/internal/checkout")
}

// Summaries loads the cart and its brand configuration and partitions it.
func (s *Service) Summaries(ctx context.Context, sessionID string) (*cart.Session, []partition.Summary, error) {
	if s == nil || s.Carts == nil || s.Partitioner == nil {
		return nil, nil, errors.New("checkout service not configured")
	}
	sess, err := s.Carts.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	brands, err := catalog.LoadBrands(ctx, s.Brands, sess.BrandIDs())
	if err != nil {
		return nil, nil, err
	}
	return sess, s.Partitioner.SummarizeSession(sess, brands), nil
}

// Review computes the summaries and aggregate of the cart and freezes them in flow.
func (s *Service) Review(ctx context.Context, flow *Flow, sessionID string, allow []string) (Review, error) {
	ctx, span := s.tracer().Start(ctx, "checkout.review")
	defer span.End()

	r, err := s.review(ctx, sessionID, allow)
	if err != nil {
		span.RecordError(err)
		return Review{}, err
	}
	if err := flow.Review(r); err != nil {
		return Review{}, err
	}
	span.SetAttributes(attribute.Int("checkout.eligible", len(r.Result.Eligible)))
	return r, nil
}

func (s *Service) review(ctx context.Context, sessionID string, allow []string) (Review, error) {
	sess, summaries, err := s.Summaries(ctx, sessionID)
	if err != nil {
		return Review{}, err
	}
	return Review{
		SessionID:  sessionID,
		Allow:      allow,
		Summaries:  summaries,
		Result:     Aggregate(summaries, allow, s.taxRate()),
		CartAt:     sess.UpdatedAt,
		ReviewedAt: s.now(),
	}, nil
}

// Submit creates one order per eligible brand of the frozen review, in summary
// order. A failing brand does not stop the others and already created orders
// are kept. Submitted brands are cleared from the cart; failed brands stay and
// the flow returns to Reviewing with only those brands. When every order was
// created but the cart could not be cleared the flow completes and the error
// wraps ErrCartNotCleared.
func (s *Service) Submit(ctx context.Context, flow *Flow) (SubmitResult, error) {
	if s == nil || s.Carts == nil || s.Orders == nil {
		return SubmitResult{}, errors.New("checkout service not configured")
	}
	r, err := flow.BeginSubmit()
	if err != nil {
		return SubmitResult{}, err
	}
	var (
		res       SubmitResult
		submitErr error
	)
	run := func(ctx context.Context) error {
		res, submitErr = s.submit(ctx, flow, r)
		return nil
	}
	if s.Locker != nil {
		if err := s.Locker.WithLock(ctx, lock.CheckoutKey(r.SessionID), s.LockTTL, run); err != nil {
			_ = flow.Fail(r)
			return SubmitResult{}, err
		}
	} else {
		_ = run(ctx)
	}
	return res, submitErr
}

func (s *Service) submit(ctx context.Context, flow *Flow, r Review) (SubmitResult, error) {
	ctx, span := s.tracer().Start(ctx, "checkout.submit", trace.WithAttributes(attribute.String("cart.id", r.SessionID)))
	defer span.End()

	if !r.Result.AnyEligible {
		_ = flow.Fail(r)
		return SubmitResult{}, ErrNothingEligible
	}
	sess, err := s.Carts.Get(ctx, r.SessionID)
	if err != nil {
		_ = flow.Fail(r)
		return SubmitResult{}, err
	}
	if !sess.UpdatedAt.Equal(r.CartAt) {
		fresh, reviewErr := s.review(ctx, r.SessionID, r.Allow)
		if reviewErr != nil {
			fresh = r
		}
		_ = flow.Fail(fresh)
		return SubmitResult{}, ErrReviewStale
	}

	res := SubmitResult{Created: []CreatedOrder{}, Failed: []FailedOrder{}}
	var failures []error
	for _, summary := range r.Result.Eligible {
		created, err := s.createOrder(ctx, sess, summary)
		if err != nil {
			res.Failed = append(res.Failed, FailedOrder{BrandID: summary.BrandID, Message: err.Error(), Err: err})
			failures = append(failures, fmt.Errorf("brand %s: %w", summary.BrandID, err))
			continue
		}
		res.Created = append(res.Created, created)
	}

	submitted := make([]string, 0, len(res.Created))
	for _, c := range res.Created {
		submitted = append(submitted, c.BrandID)
	}
	res.Cart = sess
	if len(submitted) > 0 {
		remaining, err := s.Carts.ClearBrands(ctx, r.SessionID, submitted...)
		if err != nil {
			s.Logger.Error().Err(err).Str("cart_id", r.SessionID).Strs("brands", submitted).Msg("clear submitted brands")
			failures = append(failures, fmt.Errorf("clear submitted brands: %w", err))
		} else {
			res.Cart = remaining
		}
	}

	if len(res.Failed) > 0 {
		retry := make([]string, 0, len(res.Failed))
		for _, f := range res.Failed {
			retry = append(retry, f.BrandID)
		}
		_ = flow.Fail(s.retryReview(ctx, r, retry))
		joined := errors.Join(failures...)
		span.RecordError(joined)
		span.SetStatus(codes.Error, "partial submission")
		return res, fmt.Errorf("%w: %w", ErrPartialSubmission, joined)
	}

	_ = flow.Complete()
	s.emit(ctx, events.TopicCheckoutCompleted, r.SessionID, map[string]any{
		"sessionId": r.SessionID,
		"orders":    res.Created,
	})
	if len(failures) > 0 {
		// every order exists; a retry would duplicate them
		joined := errors.Join(failures...)
		span.RecordError(joined)
		span.SetStatus(codes.Error, "cart not cleared")
		return res, fmt.Errorf("%w: %w", ErrCartNotCleared, joined)
	}
	return res, nil
}

// retryReview re-reviews the cart restricted to the brands that failed. Those
// are a subset of r's eligible brands, so r's allow list still holds. When the
// cart cannot be re-read the frozen summaries are re-aggregated instead.
func (s *Service) retryReview(ctx context.Context, r Review, failed []string) Review {
	fresh, err := s.review(ctx, r.SessionID, failed)
	if err == nil {
		return fresh
	}
	s.Logger.Warn().Err(err).Str("cart_id", r.SessionID).Msg("re-review failed brands")
	r.Allow = failed
	r.Result = Aggregate(r.Summaries, failed, s.taxRate())
	return r
}

func (s *Service) createOrder(ctx context.Context, sess *cart.Session, summary partition.Summary) (CreatedOrder, error) {
	ctx, span := s.tracer().Start(ctx, "checkout.create_order", trace.WithAttributes(attribute.String("brand.id", summary.BrandID)))
	defer span.End()

	payload := BuildPayload(summary, s.taxRate(), s.Currency, s.now())
	payload.SessionID = sess.ID
	payload.CustomerID = sess.CustomerID

	orderID, err := s.Orders.CreateOrder(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		obs.ObserveCheckoutOrder("failed")
		s.Logger.Error().Err(err).Str("brand_id", summary.BrandID).Str("cart_id", sess.ID).Msg("create order failed")
		s.emit(ctx, events.TopicOrderFailed, summary.BrandID, map[string]any{
			"sessionId": sess.ID,
			"brandId":   summary.BrandID,
			"error":     err.Error(),
		})
		return CreatedOrder{}, err
	}
	obs.ObserveCheckoutOrder("created")
	span.SetAttributes(attribute.String("order.id", orderID))
	s.Logger.Info().Str("order_id", orderID).Str("order_number", payload.OrderNumber).Str("brand_id", summary.BrandID).Msg("order created")

	s.recordUsage(ctx, sess, summary, orderID)
	s.emit(ctx, events.TopicOrderCreated, orderID, map[string]any{
		"orderId":     orderID,
		"orderNumber": payload.OrderNumber,
		"brandId":     summary.BrandID,
		"total":       payload.Total,
	})
	return CreatedOrder{BrandID: summary.BrandID, OrderID: orderID, OrderNumber: payload.OrderNumber, Total: payload.Total}, nil
}

// recordUsage settles the codes of a created order. The order stands even when
// recording fails, so failures are only logged.
func (s *Service) recordUsage(ctx context.Context, sess *cart.Session, summary partition.Summary, orderID string) {
	if s.Usage == nil {
		return
	}
	for _, c := range summary.Codes {
		usage := discount.Usage{
			DiscountCodeID: c.DiscountCodeID,
			Code:           c.Code,
			CustomerID:     sess.CustomerID,
			OrderID:        orderID,
			BrandID:        summary.BrandID,
			OrderValue:     summary.Subtotal,
			DiscountAmount: c.Amount,
			UsedAt:         s.now(),
		}
		if err := s.Usage.RecordUsage(ctx, usage); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", orderID).Str("discount_code_id", c.DiscountCodeID).Msg("record discount usage")
			continue
		}
		s.emit(ctx, events.TopicDiscountRedeemed, c.DiscountCodeID, usage)
	}
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

// taxRate is the configured rate; the zero value charges no tax.
func (s *Service) taxRate() decimal.Decimal {
	return s.TaxRate
}

// Command cartquote loads a cart scenario from JSON, prints the per-brand
// summaries and checkout review, and optionally submits one order per
// eligible brand to a logging order sink.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/brandcart/internal/cart"
	"github.com/noah-isme/brandcart/internal/catalog"
	"github.com/noah-isme/brandcart/internal/checkout"
	"github.com/noah-isme/brandcart/internal/config"
	"github.com/noah-isme/brandcart/internal/discount"
	"github.com/noah-isme/brandcart/internal/events"
	"github.com/noah-isme/brandcart/internal/lock"
	"github.com/noah-isme/brandcart/internal/obs"
	"github.com/noah-isme/brandcart/internal/partition"
	"github.com/noah-isme/brandcart/internal/ratelimit"
	"github.com/noah-isme/brandcart/internal/resilience"
)

// Scenario is the input document.
type Scenario struct {
	SessionID string                `json:"sessionId"`
	Customer  ScenarioCustomer      `json:"customer"`
	Brands    []catalog.Brand       `json:"brands"`
	Codes     []discount.Definition `json:"discountCodes"`
	Items     []ScenarioItem        `json:"items"`
	Apply     []ScenarioCode        `json:"apply"`
	Allow     []string              `json:"allow"`
	Submit    bool                  `json:"submit"`
}

type ScenarioCustomer struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	B2B       bool      `json:"b2b"`
}

type ScenarioItem struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

type ScenarioCode struct {
	Code    string `json:"code"`
	BrandID string `json:"brandId,omitempty"`
}

// Rejection is a discount code the scenario tried to apply and was refused.
type Rejection struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Report is the output document.
type Report struct {
	Cart        *cart.Session          `json:"cart"`
	Rejections  []Rejection            `json:"rejections,omitempty"`
	Review      checkout.Review        `json:"review"`
	Submission  *checkout.SubmitResult `json:"submission,omitempty"`
	SubmitError string                 `json:"submitError,omitempty"`
	Flow        checkout.State         `json:"flow"`
	Events      []events.Event         `json:"events,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "cartquote:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("cartquote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scenarioPath := fs.String("scenario", "-", "scenario JSON file, - for stdin")
	submit := fs.Bool("submit", false, "submit orders even when the scenario does not ask to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := obs.NewLogger(stderr, cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "cartquote").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	if cfg.Obs.EnableTracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "brandcart-cartquote",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("init tracer")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	sc, err := readScenario(*scenarioPath, stdin)
	if err != nil {
		return err
	}
	if sc.SessionID == "" {
		sc.SessionID = uuid.NewString()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = initRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	eventStore := &events.MemoryStore{}
	svc, carts := wire(cfg, logger, redisClient, sc, eventStore)

	report, err := quote(ctx, sc, carts, svc, *submit)
	if err != nil {
		return err
	}
	report.Events = eventStore.Events()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func wire(cfg *config.Config, logger zerolog.Logger, client *redis.Client, sc Scenario, eventStore *events.MemoryStore) (*checkout.Service, *cart.Service) {
	v := validator.New()
	codes := discount.NewMemoryStore(sc.Codes...)
	discounts := &discount.Service{
		Store:             codes,
		NewCustomerWindow: cfg.NewCustomerWindow,
		Currency:          cfg.Currency,
		Validator:         v,
		Logger:            logger,
	}

	var (
		repo      cart.Repository = cart.NewMemoryRepository()
		directory catalog.Directory
		locker    checkout.Locker
		attempts  cart.AttemptLimiter
	)
	brands := catalog.NewMemoryDirectory(sc.Brands...)
	directory = brands
	if client != nil {
		repo = cart.NewRedisRepository(client)
		directory = &catalog.CachedDirectory{Source: brands, Cache: catalog.NewCache(client, cfg.BrandCacheTTL)}
		locker = lock.Locker{Client: client}
		attempts = ratelimit.Limiter{
			Client: client,
			Prefix: "ratelimit:discount:",
			Window: cfg.CodeAttempts.Window,
			Max:    cfg.CodeAttempts.Max,
		}
	}

	carts := &cart.Service{
		Repo:      repo,
		Codes:     discounts,
		Attempts:  attempts,
		TTL:       cfg.CartTTL,
		Validator: v,
		Logger:    logger,
	}
	svc := &checkout.Service{
		Carts:       carts,
		Brands:      directory,
		Partitioner: &partition.Partitioner{DefaultMOA: cfg.DefaultMOA, Currency: cfg.Currency, Logger: logger},
		Orders: &checkout.GuardedOrders{
			Next:        &orderLog{logger: logger},
			Breaker:     resilience.NewBreaker("orders", cfg.Orders.BreakerMinCalls, cfg.Orders.BreakerRatio, cfg.Orders.BreakerOpenFor).WithLogger(logger),
			MaxAttempts: cfg.Orders.MaxAttempts,
			BaseBackoff: cfg.Orders.BaseBackoff,
			Logger:      logger,
		},
		Usage:    discounts,
		Events:   &events.Bus{Store: eventStore, Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}},
		Locker:   locker,
		LockTTL:  cfg.CheckoutLockTTL,
		TaxRate:  cfg.TaxRate,
		Currency: cfg.Currency,
		Logger:   logger,
	}
	return svc, carts
}

func quote(ctx context.Context, sc Scenario, carts *cart.Service, svc *checkout.Service, forceSubmit bool) (Report, error) {
	if _, err := carts.Attach(ctx, sc.SessionID, sc.Customer.ID, sc.Customer.B2B); err != nil {
		return Report{}, fmt.Errorf("attach customer: %w", err)
	}
	for _, it := range sc.Items {
		if _, err := carts.AddItem(ctx, sc.SessionID, it.Product, it.Quantity); err != nil {
			return Report{}, fmt.Errorf("add %s: %w", it.Product.ID, err)
		}
	}

	var report Report
	customer := discount.Customer{ID: sc.Customer.ID, CreatedAt: sc.Customer.CreatedAt}
	for _, c := range sc.Apply {
		if _, _, err := carts.ApplyCode(ctx, sc.SessionID, c.Code, customer, c.BrandID); err != nil {
			reason := discount.ReasonOf(err)
			if reason == "" {
				return Report{}, fmt.Errorf("apply %s: %w", c.Code, err)
			}
			report.Rejections = append(report.Rejections, Rejection{Code: c.Code, Reason: string(reason), Message: err.Error()})
		}
	}

	flow := checkout.NewFlow()
	review, err := svc.Review(ctx, flow, sc.SessionID, sc.Allow)
	if err != nil {
		return Report{}, fmt.Errorf("review: %w", err)
	}
	report.Review = review

	if sc.Submit || forceSubmit {
		res, err := svc.Submit(ctx, flow)
		switch {
		case err == nil, errors.Is(err, checkout.ErrPartialSubmission):
			report.Submission = &res
		case errors.Is(err, checkout.ErrNothingEligible):
		default:
			return Report{}, fmt.Errorf("submit: %w", err)
		}
		if err != nil {
			report.SubmitError = err.Error()
		}
	}

	sess, err := carts.Get(ctx, sc.SessionID)
	if err != nil {
		return Report{}, err
	}
	report.Cart = sess
	report.Flow = flow.State()
	return report, nil
}

func readScenario(path string, stdin io.Reader) (Scenario, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return Scenario{}, fmt.Errorf("open scenario: %w", err)
		}
		defer f.Close()
		r = f
	}
	var sc Scenario
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	return sc, nil
}

func initRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// orderLog accepts every order and logs it.
type orderLog struct {
	logger zerolog.Logger
}

func (o *orderLog) CreateOrder(_ context.Context, p checkout.OrderPayload) (string, error) {
	if strings.TrimSpace(p.BrandID) == "" {
		return "", errors.New("order payload without brand")
	}
	id := uuid.NewString()
	o.logger.Info().
		Str("order_id", id).
		Str("order_number", p.OrderNumber).
		Str("brand_id", p.BrandID).
		Str("total", p.Total.StringFixed(2)).
		Int("items", len(p.Items)).
		Msg("order accepted")
	return id, nil
}

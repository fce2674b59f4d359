package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartSummariesTotal counts brand summaries computed by the partitioner.
	CartSummariesTotal prometheus.Counter
	// BrandConfigMissingTotal counts cart lines whose brand configuration could not be loaded.
	BrandConfigMissingTotal prometheus.Counter
	// DiscountValidationsTotal counts discount code validations by outcome.
	DiscountValidationsTotal *prometheus.CounterVec
	// CheckoutOrdersTotal counts per-brand order creation attempts by outcome.
	CheckoutOrdersTotal *prometheus.CounterVec
	// BreakerState reports breaker state per target: 0=closed, 1=open, 2=half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitionsTotal counts breaker state transitions.
	BreakerTransitionsTotal *prometheus.CounterVec
	// CodeAttemptsLimitedTotal counts discount code attempts refused by the rate limiter.
	CodeAttemptsLimitedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartSummariesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_summaries_total",
			Help:      "Number of per-brand cart summaries computed.",
		})
		BrandConfigMissingTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brand_config_missing_total",
			Help:      "Number of brand summaries computed without brand configuration.",
		})
		DiscountValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_validations_total",
			Help:      "Count of discount code validations by result.",
		}, []string{"result"})
		CheckoutOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Count of per-brand order creation attempts by result.",
		}, []string{"result"})
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed,1=open,2=half-open.",
		}, []string{"target"})
		BreakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions.",
		}, []string{"target", "from", "to"})
		CodeAttemptsLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_code_attempts_limited_total",
			Help:      "Number of discount code attempts refused by the rate limiter.",
		})

		mustRegisterCollector(reg, CartSummariesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartSummariesTotal = v
			}
		})
		mustRegisterCollector(reg, BrandConfigMissingTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				BrandConfigMissingTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountValidationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountValidationsTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutOrdersTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutOrdersTotal = v
			}
		})
		mustRegisterCollector(reg, BreakerState, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				BreakerState = v
			}
		})
		mustRegisterCollector(reg, BreakerTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BreakerTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, CodeAttemptsLimitedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CodeAttemptsLimitedTotal = v
			}
		})
	})
}

// IncCartSummaries records computed summaries. Safe before registration.
func IncCartSummaries(n int) {
	if CartSummariesTotal != nil && n > 0 {
		CartSummariesTotal.Add(float64(n))
	}
}

// IncBrandConfigMissing records a summary built without brand configuration.
func IncBrandConfigMissing() {
	if BrandConfigMissingTotal != nil {
		BrandConfigMissingTotal.Inc()
	}
}

// ObserveDiscountValidation records a validation outcome ("accepted" or a rejection reason).
func ObserveDiscountValidation(result string) {
	if DiscountValidationsTotal != nil {
		DiscountValidationsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCheckoutOrder records an order creation outcome ("created" or "failed").
func ObserveCheckoutOrder(result string) {
	if CheckoutOrdersTotal != nil {
		CheckoutOrdersTotal.WithLabelValues(result).Inc()
	}
}

// SetBreakerState records the state of the breaker guarding target.
func SetBreakerState(target string, state float64) {
	if BreakerState != nil {
		BreakerState.WithLabelValues(target).Set(state)
	}
}

// IncBreakerTransition records a breaker moving between states.
func IncBreakerTransition(target, from, to string) {
	if BreakerTransitionsTotal != nil {
		BreakerTransitionsTotal.WithLabelValues(target, from, to).Inc()
	}
}

// IncCodeAttemptsLimited records a discount code attempt refused by the limiter.
func IncCodeAttemptsLimited() {
	if CodeAttemptsLimitedTotal != nil {
		CodeAttemptsLimitedTotal.Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

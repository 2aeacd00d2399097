package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingQuoteTotal counts pricing computations by outcome.
	PricingQuoteTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by result.
	CheckoutTotal *prometheus.CounterVec
	// CheckoutDuration records checkout latency in milliseconds.
	CheckoutDuration prometheus.Histogram
	// CheckoutSideEffectTotal counts post-commit side effects by effect and result.
	CheckoutSideEffectTotal *prometheus.CounterVec
	// OutboundRequestTotal counts calls to the messaging gateway and ledger.
	OutboundRequestTotal *prometheus.CounterVec
	// DuplicateMessageTotal counts inbound messages dropped by the deduper.
	DuplicateMessageTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quote_total",
			Help:      "Count of pricing computations by outcome.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by result.",
		}, []string{"result"})
		CheckoutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_ms",
			Help:      "Checkout latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})
		CheckoutSideEffectTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_side_effect_total",
			Help:      "Count of post-commit side effects by effect and result.",
		}, []string{"effect", "result"})
		OutboundRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_request_total",
			Help:      "Count of outbound integration calls by target and result.",
		}, []string{"target", "result"})
		DuplicateMessageTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_message_total",
			Help:      "Inbound messages dropped as duplicates.",
		})

		PricingQuoteTotal = register(reg, PricingQuoteTotal)
		CheckoutTotal = register(reg, CheckoutTotal)
		CheckoutDuration = register(reg, CheckoutDuration)
		CheckoutSideEffectTotal = register(reg, CheckoutSideEffectTotal)
		OutboundRequestTotal = register(reg, OutboundRequestTotal)
		DuplicateMessageTotal = register(reg, DuplicateMessageTotal)
	})
}

// The helpers below are no-ops until MustRegisterDomainMetrics has run.

// ObserveQuote records a pricing computation.
func ObserveQuote(empty bool) {
	if PricingQuoteTotal == nil {
		return
	}
	result := "priced"
	if empty {
		result = "empty"
	}
	PricingQuoteTotal.WithLabelValues(result).Inc()
}

// ObserveCheckout records the result and latency of a checkout attempt.
func ObserveCheckout(result string, elapsed time.Duration) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
	if CheckoutDuration != nil {
		CheckoutDuration.Observe(float64(elapsed.Milliseconds()))
	}
}

// ObserveSideEffect records the outcome of one post-commit side effect.
func ObserveSideEffect(effect string, err error) {
	if CheckoutSideEffectTotal == nil {
		return
	}
	CheckoutSideEffectTotal.WithLabelValues(effect, resultLabel(err)).Inc()
}

// ObserveOutbound records the outcome of a call to an external integration.
func ObserveOutbound(target string, err error) {
	if OutboundRequestTotal == nil {
		return
	}
	OutboundRequestTotal.WithLabelValues(target, resultLabel(err)).Inc()
}

// ObserveDuplicateMessage counts a dropped duplicate message.
func ObserveDuplicateMessage() {
	if DuplicateMessageTotal != nil {
		DuplicateMessageTotal.Inc()
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

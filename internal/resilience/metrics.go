package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbound_breaker_state",
			Help: "Breaker state per outbound target: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_breaker_transition_total",
			Help: "Breaker state transitions per outbound target",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_breaker_open_total",
			Help: "Times a breaker opened per outbound target",
		},
		[]string{"target"},
	)
	OutboundRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_retry_total",
			Help: "Retried outbound HTTP attempts per target",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundRetriesTotal)
}

package obs_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

func TestDomainMetricsHelpers(t *testing.T) {
	obs.MustRegisterDomainMetrics("toko_checkout_test", prometheus.NewRegistry())

	obs.ObserveQuote(false)
	obs.ObserveQuote(true)
	obs.ObserveCheckout("confirmed", 12*time.Millisecond)
	obs.ObserveSideEffect("ledger_sync", errors.New("boom"))
	obs.ObserveSideEffect("ledger_sync", nil)

	require.Equal(t, float64(1), testutil.ToFloat64(obs.PricingQuoteTotal.WithLabelValues("priced")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.PricingQuoteTotal.WithLabelValues("empty")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.CheckoutTotal.WithLabelValues("confirmed")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.CheckoutSideEffectTotal.WithLabelValues("ledger_sync", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.CheckoutSideEffectTotal.WithLabelValues("ledger_sync", "ok")))
	require.Equal(t, 1, testutil.CollectAndCount(obs.CheckoutDuration))
}

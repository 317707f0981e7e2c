package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics records outbound payment-gateway call metadata.
type ProviderMetrics struct {
	duration *prometheus.HistogramVec
	calls    *prometheus.CounterVec
}

// NewProviderMetrics registers the gateway metrics on the provided registerer.
func NewProviderMetrics(reg prometheus.Registerer) *ProviderMetrics {
	if reg == nil {
		return &ProviderMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_call_duration_seconds",
		Help:    "Duration of payment provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Payment provider calls by outcome.",
	}, []string{"provider", "operation", "outcome"})
	reg.MustRegister(duration, calls)
	return &ProviderMetrics{
		duration: duration,
		calls:    calls,
	}
}

// ObserveCall records one gateway call with its outcome and latency.
func (p *ProviderMetrics) ObserveCall(provider, operation, outcome string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
	p.calls.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

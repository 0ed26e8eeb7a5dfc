// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal tracks completed chat turns by provider and outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total chat turns processed",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency tracks completion call duration per provider.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_completion_duration_seconds",
			Help:    "Completion request duration per provider",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	// ProviderTokensTotal tracks tokens processed per provider.
	ProviderTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_tokens_total",
			Help: "Total provider tokens processed",
		},
		[]string{"provider", "direction"},
	)

	// SyncWritesTotal tracks persistence writes issued by the sync engine.
	SyncWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_writes_total",
			Help: "Total debounced persistence writes",
		},
		[]string{"status"},
	)

	// SyncCoalescedTotal counts mutations absorbed into an already pending write.
	SyncCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_coalesced_total",
			Help: "Transcript mutations coalesced into a pending write",
		},
	)

	// SyncCancelledTotal counts debounce timers cancelled before firing.
	SyncCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_cancelled_total",
			Help: "Debounce timers cancelled before firing",
		},
	)

	// AttachmentBytesTotal tracks bytes of attachment content resolved.
	AttachmentBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_bytes_total",
			Help: "Bytes of attachment content resolved",
		},
		[]string{"source"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records metrics for a provider completion call.
func RecordCompletion(provider, status string, duration float64, tokensIn, tokensOut int) {
	TurnsTotal.WithLabelValues(provider, status).Inc()
	ProviderLatency.WithLabelValues(provider, status).Observe(duration)
	ProviderTokensTotal.WithLabelValues(provider, "in").Add(float64(tokensIn))
	ProviderTokensTotal.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

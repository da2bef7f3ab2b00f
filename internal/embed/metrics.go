package embed

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK        = "ok"
	outcomeOverflow  = "overflow"
	outcomeRetryable = "retryable"
	outcomeError     = "error"
)

// Metrics are the Prometheus collectors for embedding traffic. A nil
// *Metrics records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	tokens       prometheus.Counter
	resizes      prometheus.Counter
	limiterWaits prometheus.Counter
	latency      prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentvec",
			Subsystem: "embed",
			Name:      "requests_total",
			Help:      "Embedding requests by outcome.",
		}, []string{"outcome"}),
		tokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: "talentvec",
			Subsystem: "embed",
			Name:      "estimated_tokens_total",
			Help:      "Estimated tokens submitted to the embedding provider.",
		}),
		resizes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "talentvec",
			Subsystem: "embed",
			Name:      "chunk_resizes_total",
			Help:      "Times a document was re-chunked with a smaller per-chunk limit.",
		}),
		limiterWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "talentvec",
			Subsystem: "ratelimit",
			Name:      "waits_total",
			Help:      "Callers suspended until the rate limit window rolled over.",
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "talentvec",
			Subsystem: "embed",
			Name:      "request_duration_seconds",
			Help:      "Embedding request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// observeRequest records a request that reached the provider.
func (m *Metrics) observeRequest(outcome string, tokens int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.tokens.Add(float64(tokens))
	m.latency.Observe(d.Seconds())
}

// observeRejected records a batch refused by the local pre-flight check.
func (m *Metrics) observeRejected() {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcomeOverflow).Inc()
}

func (m *Metrics) observeResize() {
	if m == nil {
		return
	}
	m.resizes.Inc()
}

// ObserveLimiterWait is suitable for ratelimit.WithWaitObserver.
func (m *Metrics) ObserveLimiterWait(time.Duration) {
	if m == nil {
		return
	}
	m.limiterWaits.Inc()
}

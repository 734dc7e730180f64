package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the gateway registers. The timing
// middleware updates RequestsTotal, RequestDuration and InFlightRequests;
// RateLimitDenied, ToolCallsDenied, AuditDropsTotal and Ready are
// registered but nothing updates them.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	InFlightRequests  prometheus.Gauge
	RateLimitDenied   prometheus.Counter
	ToolCallsDenied   prometheus.Counter
	AuditDropsTotal   prometheus.Gauge
	Ready             prometheus.Gauge
}

// NewMetrics registers every metric against reg. Called once per process
// against the State's own registry, never the global default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpguard",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed, by method and status class",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpguard",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		InFlightRequests: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpguard",
				Name:      "active_identities",
				Help:      "Number of HTTP requests currently being served on any route, authenticated or not; distinct identities are not counted",
			},
		),
		RateLimitDenied: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpguard",
				Name:      "rate_limit_denied_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),
		ToolCallsDenied: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpguard",
				Name:      "tool_calls_denied_total",
				Help:      "Total tools/call requests rejected by the authorization filter",
			},
		),
		AuditDropsTotal: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpguard",
				Name:      "audit_drops_total",
				Help:      "Total audit events dropped due to backpressure",
			},
		),
		Ready: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpguard",
				Name:      "ready",
				Help:      "1 if the gateway has completed startup, 0 otherwise",
			},
		),
	}
}

func statusToLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "ok"
	case code == 401, code == 403:
		return "denied"
	case code == 404:
		return "not_found"
	case code == 429:
		return "rate_limited"
	case code >= 500:
		return "error"
	default:
		return "other"
	}
}

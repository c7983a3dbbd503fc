package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EdgeMetrics captures request, resolution and upstream metrics for the edge router.
type EdgeMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
	IncResolve(outcome string)
	ObserveUpstream(target, outcome string, durationSeconds float64)
}

// Noop implements EdgeMetrics without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) IncResolve(string)                              {}
func (Noop) ObserveUpstream(string, string, float64)        {}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type edgeProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	resolves *prometheus.CounterVec
	upstream *prometheus.HistogramVec
	once     sync.Once
}

// NewEdgeProm constructs EdgeMetrics registered on the default Prometheus registry.
func NewEdgeProm(namespace string) EdgeMetrics {
	e := &edgeProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pack_resolutions_total",
			Help:      "Pack file resolutions by outcome",
		}, []string{"outcome"}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream fetch latency by target and outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "outcome"}),
	}
	e.once.Do(func() {
		prometheus.MustRegister(e.requests, e.latency, e.resolves, e.upstream)
	})
	return e
}

func (e *edgeProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	e.requests.WithLabelValues(method, route, status).Inc()
	e.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

func (e *edgeProm) IncResolve(outcome string) {
	e.resolves.WithLabelValues(outcome).Inc()
}

func (e *edgeProm) ObserveUpstream(target, outcome string, durationSeconds float64) {
	e.upstream.WithLabelValues(target, outcome).Observe(durationSeconds)
}

package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "research_token"

// Prometheus holds the service collectors on a private registry
type Prometheus struct {
	Registry *prometheus.Registry

	httpInFlight      prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	scores            *prometheus.HistogramVec
	fundings          *prometheus.CounterVec
	fundedAmount      *prometheus.CounterVec
	ledgerSubmissions *prometheus.CounterVec
	ledgerDuration    *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	rateLimitBlocks   *prometheus.CounterVec
}

// NewPrometheus creates and registers the collectors
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		Registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "impact_score",
			Help:      "Distribution of computed research impact scores.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"eligible"}),
		fundings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "funding",
			Name:      "requests_total",
			Help:      "Funding requests by payment method and outcome.",
		}, []string{"method", "outcome"}),
		fundedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "funding",
			Name:      "amount_total",
			Help:      "Total successfully funded amount by payment method.",
		}, []string{"method"}),
		ledgerSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Instructions submitted to the cluster.",
		}, []string{"instruction", "success"}),
		ledgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "confirmation_seconds",
			Help:      "Time until an instruction is confirmed or fails.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"instruction"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "blocks_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
	}

	p.Registry.MustRegister(
		p.httpInFlight,
		p.httpRequests,
		p.httpDuration,
		p.scores,
		p.fundings,
		p.fundedAmount,
		p.ledgerSubmissions,
		p.ledgerDuration,
		p.cacheLookups,
		p.rateLimitBlocks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	return p
}

// Handler exposes the registry in the Prometheus text format
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction"

// Metrics holds the collectors of one engine instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	bidsAccepted        prometheus.Counter
	bidsRejected        *prometheus.CounterVec
	extensions          prometheus.Counter
	submitDuration      prometheus.Histogram
	settlements         *prometheus.CounterVec
	settlementConflicts prometheus.Counter
	subscribers         prometheus.Gauge
	evictions           prometheus.Counter

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_accepted_total",
			Help:      "Bids committed to the ledger.",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_rejected_total",
			Help:      "Bids refused, by reason.",
		}, []string{"reason"}),
		extensions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "end_time_extensions_total",
			Help:      "Accepted bids that pushed the auction end time back.",
		}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bid_submit_duration_seconds",
			Help:      "Latency of bid submissions.",
			Buckets:   prometheus.DefBuckets,
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Auctions settled, by outcome.",
		}, []string{"outcome"}),
		settlementConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_conflicts_total",
			Help:      "Settlement attempts that lost a version race and were re-evaluated.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open event subscriptions.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_subscribers_evicted_total",
			Help:      "Subscribers dropped because they fell behind.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bidsAccepted, m.bidsRejected, m.extensions, m.submitDuration,
		m.settlements, m.settlementConflicts, m.subscribers, m.evictions,
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) BidAccepted(extended bool, took time.Duration) {
	if m == nil {
		return
	}
	m.bidsAccepted.Inc()
	if extended {
		m.extensions.Inc()
	}
	m.submitDuration.Observe(took.Seconds())
}

func (m *Metrics) BidRejected(reason string, took time.Duration) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(reason).Inc()
	m.submitDuration.Observe(took.Seconds())
}

func (m *Metrics) Settled(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SettlementConflict() {
	if m == nil {
		return
	}
	m.settlementConflicts.Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

// SubscriberRemoved records a closed subscription; evicted marks a slow one
func (m *Metrics) SubscriberRemoved(evicted bool) {
	if m == nil {
		return
	}
	m.subscribers.Dec()
	if evicted {
		m.evictions.Inc()
	}
}

// HTTPStarted marks a request in flight and returns the func that records its completion
func (m *Metrics) HTTPStarted() func(method, path string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	m.httpInFlight.Inc()
	start := time.Now()
	return func(method, path string, status int) {
		code := strconv.Itoa(status)
		m.httpRequestDuration.WithLabelValues(method, path, code).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
		m.httpInFlight.Dec()
	}
}

// Package metrics exposes duelwatch's Prometheus collectors and adapts
// them to the observer hooks of the cache, event log, service and bus.
package metrics

import (
	"time"

	"github.com/0xmhha/duelwatch/pkg/cache"
	"github.com/0xmhha/duelwatch/pkg/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "duelwatch"

// Metrics holds all collectors
type Metrics struct {
	// Cache
	CacheRequestsTotal *prometheus.CounterVec

	// Chain and delegate tiers
	TierRequestsTotal  *prometheus.CounterVec
	EventQueryDuration *prometheus.HistogramVec
	EventQueryErrors   *prometheus.CounterVec

	// Notification bus
	NotificationsPublished *prometheus.CounterVec
	NotificationsDropped   *prometheus.CounterVec
	HandlerPanicsTotal     *prometheus.CounterVec

	// HTTP API
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	WebSocketClients    prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by kind and result",
		}, []string{"kind", "result"}),

		TierRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "tier_requests_total",
			Help:      "Query operations by answering tier and result",
		}, []string{"operation", "tier", "result"}),
		EventQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "query_duration_seconds",
			Help:      "Latency of event log queries",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"event"}),
		EventQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "query_errors_total",
			Help:      "Failed event log queries",
		}, []string{"event"}),

		NotificationsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "published_total",
			Help:      "Notifications published on the bus",
		}, []string{"kind"}),
		NotificationsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications dropped for a full subscriber",
		}, []string{"kind"}),
		HandlerPanicsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "handler_panics_total",
			Help:      "Recovered subscriber handler panics",
		}, []string{"kind"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveCache implements cache.Observer
func (m *Metrics) ObserveCache(kind cache.Kind, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(string(kind), r).Inc()
}

// ObserveQuery implements eventlog.QueryObserver
func (m *Metrics) ObserveQuery(event string, elapsed time.Duration, err error) {
	m.EventQueryDuration.WithLabelValues(event).Observe(elapsed.Seconds())
	if err != nil {
		m.EventQueryErrors.WithLabelValues(event).Inc()
	}
}

// ObserveTier implements service.TierObserver
func (m *Metrics) ObserveTier(op, tier string, err error) {
	m.TierRequestsTotal.WithLabelValues(op, tier, result(err == nil)).Inc()
}

// NotificationPublished implements notify.Observer
func (m *Metrics) NotificationPublished(kind notify.Kind) {
	m.NotificationsPublished.WithLabelValues(string(kind)).Inc()
}

// NotificationDropped implements notify.Observer
func (m *Metrics) NotificationDropped(kind notify.Kind) {
	m.NotificationsDropped.WithLabelValues(string(kind)).Inc()
}

// HandlerPanicked implements notify.Observer
func (m *Metrics) HandlerPanicked(kind notify.Kind) {
	m.HandlerPanicsTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// ObserveClients records the number of connected WebSocket clients
func (m *Metrics) ObserveClients(n int) {
	m.WebSocketClients.Set(float64(n))
}

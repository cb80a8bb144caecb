package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	quotesSubmitted    prometheus.Counter
	quoteTransitions   *prometheus.CounterVec
	pricingFallbacks   *prometheus.CounterVec
	notificationsDrops *prometheus.CounterVec
	bookingsCreated    prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		quotesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotes_submitted_total",
			Help: "Quotes created through submission.",
		}),
		quoteTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_status_transitions_total",
			Help: "Applied quote status transitions.",
		}, []string{"from", "to", "override"}),
		pricingFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_pricing_fallbacks_total",
			Help: "Prices computed with a default rule instead of a mapped one.",
		}, []string{"kind"}),
		notificationsDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_notifications_dropped_total",
			Help: "Notifications that could not be enqueued.",
		}, []string{"event"}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotes_bookings_created_total",
			Help: "Confirmed measurement bookings.",
		}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.quotesSubmitted,
		m.quoteTransitions,
		m.pricingFallbacks,
		m.notificationsDrops,
		m.bookingsCreated,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// QuoteSubmitted counts a created quote.
func (m *Metrics) QuoteSubmitted() {
	if m == nil {
		return
	}
	m.quotesSubmitted.Inc()
}

// QuoteTransition counts an applied status change.
func (m *Metrics) QuoteTransition(from, to string, override bool) {
	if m == nil {
		return
	}
	m.quoteTransitions.WithLabelValues(from, to, strconv.FormatBool(override)).Inc()
}

// PricingFallback counts a default rule used while pricing.
func (m *Metrics) PricingFallback(kind string) {
	if m == nil {
		return
	}
	m.pricingFallbacks.WithLabelValues(kind).Inc()
}

// NotificationDropped counts a notification whose enqueue failed.
func (m *Metrics) NotificationDropped(event string) {
	if m == nil {
		return
	}
	m.notificationsDrops.WithLabelValues(event).Inc()
}

// BookingCreated counts a confirmed booking.
func (m *Metrics) BookingCreated() {
	if m == nil {
		return
	}
	m.bookingsCreated.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

// Package metrics exposes Prometheus metrics for the marketplace server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kisan-sarthi/backend/internal/models"
)

// Namespace prefixes every metric.
const Namespace = "kisan"

// Metrics holds all server metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Wizard metrics
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
	WizardSessions     prometheus.Gauge

	// Feed and media metrics
	FeedPagesServed *prometheus.CounterVec
	FeedItemsServed *prometheus.CounterVec
	MediaBytesSaved prometheus.Counter

	// Auth metrics
	OTPRequests *prometheus.CounterVec
}

// New creates the metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}
	m.initHTTPMetrics(factory)
	m.initWizardMetrics(factory)
	m.initFeedMetrics(factory)
	return m
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	m.RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
}

func (m *Metrics) initWizardMetrics(factory promauto.Factory) {
	m.SubmissionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "wizard",
		Name:      "submissions_total",
		Help:      "Wizard submissions by collection and outcome",
	}, []string{"kind", "outcome"})

	m.SubmissionDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "wizard",
		Name:      "submission_duration_seconds",
		Help:      "Time from submit to a settled outcome",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"kind"})

	m.WizardSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "wizard",
		Name:      "sessions",
		Help:      "Open server-side wizard sessions",
	})

	m.OTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "auth",
		Name:      "otp_requests_total",
		Help:      "OTP send and verify attempts by result",
	}, []string{"op", "result"})
}

func (m *Metrics) initFeedMetrics(factory promauto.Factory) {
	m.FeedPagesServed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "feed",
		Name:      "pages_served_total",
		Help:      "Listing pages served",
	}, []string{"kind"})

	m.FeedItemsServed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "feed",
		Name:      "items_served_total",
		Help:      "Listing records served",
	}, []string{"kind"})

	m.MediaBytesSaved = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "media",
		Name:      "bytes_saved_total",
		Help:      "Bytes written to media storage",
	})
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSubmit implements wizard.SubmitObserver.
func (m *Metrics) ObserveSubmit(kind models.CollectionKind, outcome string, d time.Duration) {
	m.SubmissionsTotal.WithLabelValues(string(kind), outcome).Inc()
	m.SubmissionDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObservePage records one served feed page.
func (m *Metrics) ObservePage(kind models.CollectionKind, items int) {
	m.FeedPagesServed.WithLabelValues(string(kind)).Inc()
	m.FeedItemsServed.WithLabelValues(string(kind)).Add(float64(items))
}

// ObserveOTP records an OTP operation; result is "ok" or an error code.
func (m *Metrics) ObserveOTP(op, result string) {
	m.OTPRequests.WithLabelValues(op, result).Inc()
}

// Middleware counts requests by matched route so path parameters do not
// explode label cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

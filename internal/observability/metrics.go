// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for reconciliation attempts and the HTTP API.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the itinerary service.
type Collector struct {
	gatherer prometheus.Gatherer

	Attempts         *prometheus.CounterVec
	AttemptDurations *prometheus.HistogramVec
	RemoteFailures   prometheus.Counter
	ActiveLanes      prometheus.Gauge

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns the already registered collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	attempts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itinerary_attempts_total",
		Help: "Reconciliation attempts, labeled by attempt kind and terminal state.",
	}, []string{"kind", "state"}), "itinerary_attempts_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itinerary_attempt_duration_seconds",
		Help:    "Reconciliation attempt latency in seconds, from enqueue to terminal state.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"}), "itinerary_attempt_duration_seconds")
	if err != nil {
		return nil, err
	}

	remoteFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "itinerary_remote_sync_failures_total",
		Help: "Pushes to the store of record that failed after a local commit.",
	}), "itinerary_remote_sync_failures_total")
	if err != nil {
		return nil, err
	}

	lanes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "itinerary_active_lanes",
		Help: "Itineraries with a running single-writer lane.",
	}), "itinerary_active_lanes")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "itinerary_http_requests_total",
		Help: "Handled HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"}), "itinerary_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itinerary_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"}), "itinerary_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Attempts:         attempts,
		AttemptDurations: durations,
		RemoteFailures:   remoteFailures,
		ActiveLanes:      lanes,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
	}, nil
}

// RecordAttempt counts one finished attempt. Safe on a nil Collector.
func (c *Collector) RecordAttempt(kind, state string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Attempts.WithLabelValues(kind, state).Inc()
	c.AttemptDurations.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordRemoteFailure counts one failed push. Safe on a nil Collector.
func (c *Collector) RecordRemoteFailure() {
	if c == nil {
		return
	}
	c.RemoteFailures.Inc()
}

// SetActiveLanes reports the number of running lanes. Safe on a nil Collector.
func (c *Collector) SetActiveLanes(n int) {
	if c == nil {
		return
	}
	c.ActiveLanes.Set(float64(n))
}

// Middleware records request counts and durations under a fixed route label.
// The route is the registered pattern, not the raw path, to bound cardinality.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

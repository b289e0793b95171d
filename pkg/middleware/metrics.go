package middleware

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/gateway/pkg/gateway"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "gateway").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "gateway",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the gateway.
type metrics struct {
	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	applicationErrors    *prometheus.CounterVec
	connectionsAccepted  prometheus.Counter
	connectionsActive    prometheus.Gauge
	connectionsCompleted *prometheus.CounterVec
	bytesSent            prometheus.Counter
}

// globalMetrics is created by the first call to Prometheus or ConnMetrics.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of application calls by method and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "code"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Application call duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),

		applicationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "application_errors_total",
			Help:        "Total number of application calls that failed",
			ConstLabels: config.ConstLabels,
		}, []string{"error_type"}),

		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_accepted_total",
			Help:        "Total number of accepted connections",
			ConstLabels: config.ConstLabels,
		}),

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_active",
			Help:        "Number of connections currently owned by a worker",
			ConstLabels: config.ConstLabels,
		}),

		connectionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_completed_total",
			Help:        "Total number of closed connections by last state and error type",
			ConstLabels: config.ConstLabels,
		}, []string{"state", "error_type"}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_sent_total",
			Help:        "Total response bytes written to clients",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func sharedMetrics(opts []MetricsOption) *metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	return globalMetrics
}

// Prometheus creates middleware that records every application call.
//
// Metrics collected:
//   - gateway_requests_total: Counter of calls by method and status code
//   - gateway_request_duration_seconds: Histogram of call duration
//   - gateway_application_errors_total: Counter of failed calls by error type
//
// Example:
//
//	app := middleware.Chain(myApp,
//	    middleware.Prometheus(middleware.WithNamespace("myapp")),
//	)
//
// Metrics are registered once; options passed after the first call to
// Prometheus or ConnMetrics are ignored.
func Prometheus(opts ...MetricsOption) Middleware {
	m := sharedMetrics(opts)

	return func(next gateway.Application) gateway.Application {
		return gateway.ApplicationFunc(func(env *gateway.Environ, start gateway.StartResponse) (gateway.Body, error) {
			rec := &statusRecorder{next: start}
			begin := time.Now()
			defer func() {
				if r := recover(); r != nil {
					m.requestDuration.WithLabelValues(env.RequestMethod).Observe(time.Since(begin).Seconds())
					m.applicationErrors.WithLabelValues("panic").Inc()
					m.requestsTotal.WithLabelValues(env.RequestMethod, "error").Inc()
					panic(r)
				}
			}()

			body, err := next.Serve(env, rec.start)

			m.requestDuration.WithLabelValues(env.RequestMethod).Observe(time.Since(begin).Seconds())
			if err != nil {
				m.applicationErrors.WithLabelValues(categorizeError(err)).Inc()
				m.requestsTotal.WithLabelValues(env.RequestMethod, "error").Inc()
				return body, err
			}
			m.requestsTotal.WithLabelValues(env.RequestMethod, rec.code()).Inc()
			return body, nil
		})
	}
}

// ConnMetrics returns gateway hooks that record connection-level metrics:
//   - gateway_connections_accepted_total
//   - gateway_connections_active
//   - gateway_connections_completed_total (by last state and error type)
//   - gateway_bytes_sent_total
func ConnMetrics(opts ...MetricsOption) gateway.Hooks {
	return connHooks{m: sharedMetrics(opts)}
}

type connHooks struct {
	m *metrics
}

func (h connHooks) OnAccept(string) {
	h.m.connectionsAccepted.Inc()
	h.m.connectionsActive.Inc()
}

func (h connHooks) OnComplete(rec gateway.RequestRecord) {
	h.m.connectionsActive.Dec()
	errType := "none"
	if rec.Err != nil {
		errType = categorizeError(rec.Err)
	}
	h.m.connectionsCompleted.WithLabelValues(rec.State.String(), errType).Inc()
	h.m.bytesSent.Add(float64(rec.Bytes))
}

// categorizeError maps an error to a low-cardinality label.
func categorizeError(err error) string {
	var panicErr *gateway.ApplicationPanicError
	var connErr *gateway.ConnError
	switch {
	case errors.Is(err, gateway.ErrEmptyRequest):
		return "empty_request"
	case errors.Is(err, gateway.ErrMalformedRequestLine):
		return "malformed_request"
	case errors.Is(err, gateway.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, gateway.ErrResponseNotStarted):
		return "not_started"
	case errors.As(err, &panicErr):
		return "panic"
	case errors.As(err, &connErr):
		return "transport_" + connErr.Op
	default:
		return "application"
	}
}

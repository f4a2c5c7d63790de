// Package metrics exposes request and cache counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlplug/internal/eventbus"
	events "github.com/hanpama/gqlplug/internal/events"
)

const namespace = "gqlplug"

// Metrics holds the collectors fed from bus events.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec
	ResolverDuration  *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	CacheStores       *prometheus.CounterVec
	CacheSkips        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "operations_total",
				Help:      "Total number of executed GraphQL operations",
			},
			[]string{"type"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "operation_duration_seconds",
				Help:      "GraphQL operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		OperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "errors_total",
				Help:      "Total number of errors in GraphQL results",
			},
			[]string{"type"},
		),
		ResolverDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "graphql",
				Name:      "resolver_duration_seconds",
				Help:      "Traced field resolver duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"parent_type", "field"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Response cache lookups by mode and result (hit, miss, error)",
			},
			[]string{"mode", "result"},
		),
		CacheStores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "stores_total",
				Help:      "Response cache writes by mode and result (ok, error)",
			},
			[]string{"mode", "scope", "result"},
		),
		CacheSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "skips_total",
				Help:      "Responses not stored by reason",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		m.HTTPRequests, m.HTTPDuration,
		m.Operations, m.OperationDuration, m.OperationErrors, m.ResolverDuration,
		m.CacheLookups, m.CacheStores, m.CacheSkips,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Subscribe feeds the collectors from bus.
func (m *Metrics) Subscribe(bus *eventbus.Bus) (unsubscribe func()) {
	subs := []func(){
		eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.HTTPDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) {
			m.Operations.WithLabelValues(e.OperationType).Inc()
			m.OperationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
			if n := len(e.Errors); n > 0 {
				m.OperationErrors.WithLabelValues(e.OperationType).Add(float64(n))
			}
		}),
		eventbus.On(bus, func(_ context.Context, e events.FieldResolved) {
			m.ResolverDuration.WithLabelValues(e.ParentType, e.FieldName).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.CacheLookup) {
			result := "miss"
			switch {
			case e.Err != nil:
				result = "error"
			case e.Hit:
				result = "hit"
			}
			m.CacheLookups.WithLabelValues(e.Mode, result).Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.CacheStore) {
			result := "ok"
			if e.Err != nil {
				result = "error"
			}
			m.CacheStores.WithLabelValues(e.Mode, e.Scope, result).Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.CacheSkip) {
			m.CacheSkips.WithLabelValues(e.Reason).Inc()
		}),
	}
	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
	}
}

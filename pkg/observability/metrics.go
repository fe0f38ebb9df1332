// Package observability holds the service's Prometheus metrics and X-Ray
// instrumentation.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry, so several collectors can coexist in
// one process. All methods are safe on a nil Collector.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	topicsCreated      prometheus.Counter
	topicsDeleted      prometheus.Counter
	referencesAttached *prometheus.CounterVec
	logins             *prometheus.CounterVec
	sessionsPurged     prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		topicsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_created_total",
			Help:      "Total number of topics created",
		}),
		topicsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_deleted_total",
			Help:      "Total number of topics deleted",
		}),
		referencesAttached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_attached_total",
			Help:      "Total number of references attached to topics",
		}, []string{"kind"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Completed login attempts by flow and outcome",
		}, []string{"flow", "outcome"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Total number of stale sessions removed by the reaper",
		}),
	}
	c.registry.MustRegister(
		c.httpRequests, c.httpDuration,
		c.topicsCreated, c.topicsDeleted, c.referencesAttached,
		c.logins, c.sessionsPurged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) TopicCreated() {
	if c != nil {
		c.topicsCreated.Inc()
	}
}

func (c *Collector) TopicDeleted() {
	if c != nil {
		c.topicsDeleted.Inc()
	}
}

func (c *Collector) ReferenceAttached(kind string) {
	if c != nil {
		c.referencesAttached.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) LoginCompleted(flow string, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.logins.WithLabelValues(flow, outcome).Inc()
}

func (c *Collector) SessionsPurged(n int) {
	if c != nil {
		c.sessionsPurged.Add(float64(n))
	}
}

// Package metrics wraps the Prometheus collectors the bridge exports. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walter"

type Collector struct {
	registry *prometheus.Registry

	WebhookRequests *prometheus.CounterVec
	WebhookDuration *prometheus.HistogramVec
	RunDuration     *prometheus.HistogramVec
	LookupRequests  *prometheus.CounterVec
	ThreadsCreated  prometheus.Counter
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook calls by outcome",
		}, []string{"outcome"}),
		WebhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Webhook handling time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assistant_run_duration_seconds",
			Help:      "Time from run submission to terminal status",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"status"}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "Vehicle record lookups by result",
		}, []string{"result"}),
		ThreadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_created_total",
			Help:      "Remote assistant threads created",
		}),
	}
	reg.MustRegister(c.WebhookRequests, c.WebhookDuration, c.RunDuration, c.LookupRequests, c.ThreadsCreated)
	return c
}

func (c *Collector) ObserveWebhook(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.WebhookRequests.WithLabelValues(outcome).Inc()
	c.WebhookDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) ObserveRun(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.RunDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (c *Collector) ObserveLookup(result string) {
	if c == nil {
		return
	}
	c.LookupRequests.WithLabelValues(result).Inc()
}

func (c *Collector) ThreadCreated() {
	if c == nil {
		return
	}
	c.ThreadsCreated.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

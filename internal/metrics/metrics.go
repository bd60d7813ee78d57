package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes queue, notification and HTTP activity. It implements
// queue.Recorder and notify.Recorder.
type Collector struct {
	registry *prometheus.Registry

	turnsRegistered *prometheus.CounterVec
	turnsCompleted  prometheus.Counter
	turnsCancelled  prometheus.Counter
	turnsWaiting    prometheus.Gauge
	notifications   *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		turnsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balha_turns_registered_total",
			Help: "Turns registered, by service type",
		}, []string{"service"}),
		turnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balha_turns_completed_total",
			Help: "Turns completed by the administrator",
		}),
		turnsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balha_turns_cancelled_total",
			Help: "Turns cancelled by customers",
		}),
		turnsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "balha_turns_waiting",
			Help: "Current number of waiting turns",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balha_notifications_total",
			Help: "Simulated notifications, by outcome",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balha_http_requests_total",
			Help: "HTTP requests, by method and status code",
		}, []string{"method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "balha_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	c.registry.MustRegister(
		c.turnsRegistered,
		c.turnsCompleted,
		c.turnsCancelled,
		c.turnsWaiting,
		c.notifications,
		c.httpRequests,
		c.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordRegistered(serviceType string) {
	c.turnsRegistered.WithLabelValues(serviceType).Inc()
}

func (c *Collector) RecordCompleted() {
	c.turnsCompleted.Inc()
}

func (c *Collector) RecordCancelled() {
	c.turnsCancelled.Inc()
}

func (c *Collector) SetWaiting(count int) {
	c.turnsWaiting.Set(float64(count))
}

func (c *Collector) RecordNotification(status string) {
	c.notifications.WithLabelValues(status).Inc()
}

func (c *Collector) RecordRequest(method string, status int, seconds float64) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method).Observe(seconds)
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "p2p_signaling"

var eventsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "events_total"),
	"Internal event counters.",
	[]string{"event"}, nil,
)

// eventsCollector exposes every Metrics counter as one series of
// p2p_signaling_events_total with an event label.
type eventsCollector struct {
	m *Metrics
}

func (c eventsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
}

func (c eventsCollector) Collect(ch chan<- prometheus.Metric) {
	for name, v := range c.m.Snapshot() {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(v), name)
	}
}

// Exporter owns a private Prometheus registry holding the event counters,
// caller-supplied gauges, HTTP request metrics, and the Go runtime collectors.
type Exporter struct {
	reg          *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewExporter(m *Metrics) *Exporter {
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	e.reg.MustRegister(
		eventsCollector{m: m},
		e.httpRequests,
		e.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// RegisterGauge adds a gauge named p2p_signaling_<name> whose value is read
// from fn at scrape time. It panics if name is already registered.
func (e *Exporter) RegisterGauge(name, help string, fn func() float64) {
	e.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveHTTPRequest records one completed HTTP request. route should be the
// matched mux pattern rather than the raw path to keep label cardinality
// bounded.
func (e *Exporter) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if e == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	e.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	e.httpDuration.WithLabelValues(method, route, statusLabel).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg})
}

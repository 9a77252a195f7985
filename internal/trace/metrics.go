package trace

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSink turns events into Prometheus metrics.
//
//	cognos_events_total{kind}
//	cognos_errors_total{kind}
//	cognos_effect_latency_seconds{kind}
type MetricsSink struct {
	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// NewMetricsSink registers the collectors on reg. A nil reg uses a fresh
// private registry so repeated construction in tests never collides.
func NewMetricsSink(reg *prometheus.Registry) *MetricsSink {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &MetricsSink{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cognos_events_total",
				Help: "Total number of trace events by kind",
			},
			[]string{"kind"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cognos_errors_total",
				Help: "Total number of trace events carrying an error",
			},
			[]string{"kind"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cognos_effect_latency_seconds",
				Help:    "Latency of effect calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		gatherer: reg,
	}
	reg.MustRegister(s.events, s.errors, s.latency)
	return s
}

// Write implements Sink.
func (s *MetricsSink) Write(ev Event) error {
	kind := string(ev.Kind)
	s.events.WithLabelValues(kind).Inc()
	if ev.Error != "" {
		s.errors.WithLabelValues(kind).Inc()
	}
	if ms, ok := ev.NumberField("latency_ms"); ok {
		s.latency.WithLabelValues(kind).Observe(ms / 1000)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (s *MetricsSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

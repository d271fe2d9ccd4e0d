// Package metrics - Prometheus-метрики сервиса
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Результаты генерации сообщения
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeFailure     = "failure"
	OutcomePersistence = "persistence_error"
)

// Metrics - все метрики процесса. Nil-безопасен: методы на nil ничего не делают.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	ConfigFallbacks    prometheus.Counter

	FollowUpCandidates prometheus.Gauge
	WebsocketClients   prometheus.Gauge
}

// New создаёт метрики в собственном реестре
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealercrm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealercrm_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealercrm_generations_total",
				Help: "Follow-up message generations by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealercrm_generation_duration_seconds",
				Help:    "Duration of language model calls in seconds",
				Buckets: []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		ConfigFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dealercrm_assistant_config_fallbacks_total",
				Help: "Generations that used the built-in assistant configuration",
			},
		),

		FollowUpCandidates: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dealercrm_follow_up_candidates",
				Help: "Clients needing follow-up at the last classification",
			},
		),
		WebsocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dealercrm_websocket_clients",
				Help: "Connected dashboard websocket clients",
			},
		),
	}
}

// Registry - реестр для тестов и экспорта
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдаёт метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordGeneration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.GenerationDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordConfigFallback() {
	if m == nil {
		return
	}
	m.ConfigFallbacks.Inc()
}

func (m *Metrics) SetFollowUpCandidates(n int) {
	if m == nil {
		return
	}
	m.FollowUpCandidates.Set(float64(n))
}

func (m *Metrics) AddWebsocketClients(delta int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Add(float64(delta))
}

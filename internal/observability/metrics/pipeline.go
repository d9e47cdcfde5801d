package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	extractTotal    *prometheus.CounterVec
	extractDuration *prometheus.HistogramVec
	extractInFlight prometheus.Gauge
	errorTotal      *prometheus.CounterVec
	cacheEvents     *prometheus.CounterVec
	modelTokens     prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	extractTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vat",
			Subsystem: "pipeline",
			Name:      "extraction_total",
			Help:      "Total extraction jobs by status and engine.",
		},
		[]string{"service", "status", "engine"},
	)
	extractDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vat",
			Subsystem: "pipeline",
			Name:      "extraction_duration_seconds",
			Help:      "Extraction duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	extractInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vat",
			Subsystem: "pipeline",
			Name:      "extraction_in_flight",
			Help:      "Number of in-flight extraction jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	errorTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vat",
			Subsystem: "pipeline",
			Name:      "error_total",
			Help:      "Non-nominal outcomes by error category.",
		},
		[]string{"service", "category"},
	)
	cacheEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vat",
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Cache events: hit, miss, eviction, expired.",
		},
		[]string{"service", "event"},
	)
	modelTokens := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vat",
			Subsystem: "model",
			Name:      "tokens_total",
			Help:      "Tokens consumed by external model calls.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(extractTotal, extractDuration, extractInFlight, errorTotal, cacheEvents, modelTokens)

	return &PipelineMetrics{
		registry:        registry,
		extractTotal:    extractTotal,
		extractDuration: extractDuration,
		extractInFlight: extractInFlight,
		errorTotal:      errorTotal,
		cacheEvents:     cacheEvents,
		modelTokens:     modelTokens,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartExtraction() {
	m.extractInFlight.Inc()
}

func (m *PipelineMetrics) FinishExtraction(service, engine string, duration time.Duration, err error) {
	m.extractInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.extractTotal.WithLabelValues(service, status, engine).Inc()
	m.extractDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveError(service, category string) {
	if category == "" {
		return
	}
	m.errorTotal.WithLabelValues(service, category).Inc()
}

func (m *PipelineMetrics) ObserveCacheEvent(service, event string) {
	m.cacheEvents.WithLabelValues(service, event).Inc()
}

func (m *PipelineMetrics) AddModelTokens(n int) {
	if n > 0 {
		m.modelTokens.Add(float64(n))
	}
}

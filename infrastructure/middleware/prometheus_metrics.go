// Package middleware provides cross-cutting concerns for the chatbot and the
// evaluation harness.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-ragqa/infrastructure/llm"
	"github.com/ahrav/go-ragqa/internal/ports"
)

const namespace = "ragqa"

// Metric names understood by PrometheusMetrics in addition to the llm
// package's MetricLLM* names.
const (
	MetricEvalScore       = "eval_score"
	MetricEvalSummary     = "eval_summary"
	MetricUnitLatency     = "unit_duration_seconds"
	MetricQueriesTotal    = "queries_total"
	MetricChunksIndexed   = "chunks_indexed_total"
	MetricDocumentsLoaded = "documents_loaded_total"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It covers LLM traffic, pipeline unit latency, ingestion
// throughput, per-query evaluation scores and the averages of the last
// evaluation run.
type PrometheusMetrics struct {
	llmLatency       *prometheus.HistogramVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	unitLatency      *prometheus.HistogramVec
	evalScores       *prometheus.HistogramVec
	evalSummary      *prometheus.GaugeVec
	breakerState     *prometheus.GaugeVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// its collectors with reg. A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      llm.MetricLLMLatency,
				Help:      "Latency of LLM provider requests.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model", "status"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      llm.MetricLLMRequests,
				Help:      "Total number of LLM provider requests by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      llm.MetricLLMTokens,
				Help:      "Total number of tokens sent to and received from LLM providers.",
			},
			[]string{"provider", "model", "token_type"},
		),
		unitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricUnitLatency,
				Help:      "Execution time of pipeline units.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		evalScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricEvalScore,
				Help:      "Per-query evaluation scores.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"metric"},
		),
		evalSummary: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      MetricEvalSummary,
				Help:      "Averaged evaluation scores of the most recent run.",
			},
			[]string{"metric"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "llm_circuit_breaker_state",
				Help:      "Circuit breaker state per provider (0 closed, 1 open, 2 half open).",
			},
			[]string{"provider"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of operations by name and status.",
			},
			[]string{"operation", "status", "unit"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_state",
				Help:      "Current system state values.",
			},
			[]string{"metric", "unit"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.unitLatency.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(labels["provider"], labels["model"], labels["token_type"]).Add(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status, unitLabel(labels)).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricEvalSummary:
		pm.evalSummary.WithLabelValues(labels["metric"]).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, unitLabel(labels)).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Observe(value)
	case MetricEvalScore:
		pm.evalScores.WithLabelValues(labels["metric"]).Observe(value)
	default:
		pm.unitLatency.WithLabelValues(metric, unitLabel(labels)).Observe(value)
	}
}

// OnStateChange implements llm.CircuitBreakerObserver.
func (pm *PrometheusMetrics) OnStateChange(provider string, _, to llm.CircuitBreakerState) {
	pm.breakerState.WithLabelValues(provider).Set(float64(to))
}

func unitLabel(labels map[string]string) string {
	if unit := labels["unit"]; unit != "" {
		return unit
	}
	return "unknown"
}

var (
	_ ports.MetricsCollector     = (*PrometheusMetrics)(nil)
	_ llm.CircuitBreakerObserver = (*PrometheusMetrics)(nil)
)

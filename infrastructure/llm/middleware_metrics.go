package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-ragqa/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricLLMLatency  = "llm_latency_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

// MetricsMiddleware records latency, request outcome and token usage for
// provider. A nil collector disables it.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	if collector == nil {
		return func(next CoreLLM) CoreLLM { return next }
	}
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector, provider: provider}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}
	m.collector.RecordHistogram(MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensIn), tokenLabels(labels, "input"))
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensOut), tokenLabels(labels, "output"))
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Type != ErrorTypeUnknown {
		return pe.Type.String()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func tokenLabels(base map[string]string, tokenType string) map[string]string {
	return map[string]string{
		"provider":   base["provider"],
		"model":      base["model"],
		"token_type": tokenType,
	}
}

func (m *metricsLLM) GetModel() string      { return m.next.GetModel() }
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }

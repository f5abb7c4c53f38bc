package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics is the recording surface the rest of the codebase uses. All
// label values must be bounded: model names, agent categories, document
// types and route paths, never session or upload identifiers.
type Metrics interface {
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordAgentRun(ctx context.Context, category, mode string, duration time.Duration, err error)
	RecordCacheLookup(ctx context.Context, hit bool)
	RecordStoreSearch(ctx context.Context, backend string, duration time.Duration, err error)
	RecordDocumentsIndexed(ctx context.Context, backend, documentType string, count int)
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

type PrometheusMetrics struct {
	llmDuration metric.Float64Histogram
	llmTokens   metric.Int64Counter
	llmErrors   metric.Int64Counter

	agentDuration metric.Float64Histogram
	agentRuns     metric.Int64Counter
	agentErrors   metric.Int64Counter

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	storeSearchDuration metric.Float64Histogram
	storeErrors         metric.Int64Counter
	documentsIndexed    metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

func NewPrometheusMetrics(
	llmDuration metric.Float64Histogram,
	llmTokens metric.Int64Counter,
	llmErrors metric.Int64Counter,
	agentDuration metric.Float64Histogram,
	agentRuns metric.Int64Counter,
	agentErrors metric.Int64Counter,
	cacheHits metric.Int64Counter,
	cacheMisses metric.Int64Counter,
	storeSearchDuration metric.Float64Histogram,
	storeErrors metric.Int64Counter,
	documentsIndexed metric.Int64Counter,
	httpDuration metric.Float64Histogram,
	httpRequests metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		llmDuration:         llmDuration,
		llmTokens:           llmTokens,
		llmErrors:           llmErrors,
		agentDuration:       agentDuration,
		agentRuns:           agentRuns,
		agentErrors:         agentErrors,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		storeSearchDuration: storeSearchDuration,
		storeErrors:         storeErrors,
		documentsIndexed:    documentsIndexed,
		httpDuration:        httpDuration,
		httpRequests:        httpRequests,
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmTokens == nil {
		return
	}

	modelAttr := attribute.String("model", model)

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(modelAttr))
	m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(modelAttr, attribute.String("direction", "input")))
	m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(modelAttr, attribute.String("direction", "output")))

	if err != nil && m.llmErrors != nil {
		m.llmErrors.Add(ctx, 1, metric.WithAttributes(modelAttr))
	}
}

func (m *PrometheusMetrics) RecordAgentRun(ctx context.Context, category, mode string, duration time.Duration, err error) {
	if m == nil || m.agentDuration == nil || m.agentRuns == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("category", category),
		attribute.String("mode", mode),
	}

	m.agentDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.agentRuns.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.agentErrors != nil {
		m.agentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
	}
}

func (m *PrometheusMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}

	if hit {
		if m.cacheHits != nil {
			m.cacheHits.Add(ctx, 1)
		}
		return
	}
	if m.cacheMisses != nil {
		m.cacheMisses.Add(ctx, 1)
	}
}

func (m *PrometheusMetrics) RecordStoreSearch(ctx context.Context, backend string, duration time.Duration, err error) {
	if m == nil || m.storeSearchDuration == nil {
		return
	}

	backendAttr := attribute.String("backend", backend)

	m.storeSearchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(backendAttr))

	if err != nil && m.storeErrors != nil {
		m.storeErrors.Add(ctx, 1, metric.WithAttributes(backendAttr, attribute.String("operation", "search")))
	}
}

func (m *PrometheusMetrics) RecordDocumentsIndexed(ctx context.Context, backend, documentType string, count int) {
	if m == nil || m.documentsIndexed == nil {
		return
	}

	m.documentsIndexed.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("document_type", documentType),
	))
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpDuration == nil || m.httpRequests == nil {
		return
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
	))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", statusCode),
	))
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

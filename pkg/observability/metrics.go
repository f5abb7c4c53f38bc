package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mizanhq/mizan/pkg/config"
)

// InitMetrics builds the instrument set behind the /metrics endpoint.
// The prometheus exporter registers against the default registry, so
// promhttp.Handler() picks everything up without extra wiring. A
// disabled config returns an empty PrometheusMetrics whose record
// methods are no-ops.
func InitMetrics(ctx context.Context, cfg config.MetricsConfig) (*PrometheusMetrics, error) {
	if cfg.Enabled != nil && !*cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("mizan")

	llmDuration, err := meter.Float64Histogram(
		"mizan_llm_call_duration_seconds",
		metric.WithDescription("LLM call duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmTokens, err := meter.Int64Counter(
		"mizan_llm_tokens_total",
		metric.WithDescription("Total tokens exchanged with the LLM, by direction"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"mizan_llm_errors_total",
		metric.WithDescription("Total failed LLM calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	agentDuration, err := meter.Float64Histogram(
		"mizan_agent_run_duration_seconds",
		metric.WithDescription("Agent run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent duration histogram: %w", err)
	}

	agentRuns, err := meter.Int64Counter(
		"mizan_agent_runs_total",
		metric.WithDescription("Total agent runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent runs counter: %w", err)
	}

	agentErrors, err := meter.Int64Counter(
		"mizan_agent_errors_total",
		metric.WithDescription("Total failed agent runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent errors counter: %w", err)
	}

	cacheHits, err := meter.Int64Counter(
		"mizan_insights_cache_hits_total",
		metric.WithDescription("Chat queries answered from cached insights"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	cacheMisses, err := meter.Int64Counter(
		"mizan_insights_cache_misses_total",
		metric.WithDescription("Chat queries that found no cached insights"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	storeSearchDuration, err := meter.Float64Histogram(
		"mizan_store_search_duration_seconds",
		metric.WithDescription("Semantic store search duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store search histogram: %w", err)
	}

	storeErrors, err := meter.Int64Counter(
		"mizan_store_errors_total",
		metric.WithDescription("Total failed store operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store errors counter: %w", err)
	}

	documentsIndexed, err := meter.Int64Counter(
		"mizan_store_documents_indexed_total",
		metric.WithDescription("Documents written to the semantic store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create documents indexed counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"mizan_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"mizan_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return NewPrometheusMetrics(
		llmDuration,
		llmTokens,
		llmErrors,
		agentDuration,
		agentRuns,
		agentErrors,
		cacheHits,
		cacheMisses,
		storeSearchDuration,
		storeErrors,
		documentsIndexed,
		httpDuration,
		httpRequests,
	), nil
}

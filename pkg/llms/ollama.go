package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizanhq/mizan/pkg/httpclient"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// OllamaProvider talks to a local Ollama runtime over /api/chat.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *httpclient.Client
}

// OllamaConfig configures one provider instance.
type OllamaConfig struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   interface{}     `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
	Think    interface{}     `json:"think,omitempty"`
}

type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider builds a provider for one model role.
func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(time.Second),
			httpclient.WithHeaderParser(httpclient.ParseRetryAfter),
		),
	}, nil
}

// Generate performs one non-streaming chat call. Failures come back as
// typed llm_unavailable errors so callers can surface a stable code.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	tracer := observability.GetTracer("mizan.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMCall,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.model),
			attribute.Bool("llm.think", req.Think),
		),
	)
	defer span.End()

	request := p.buildRequest(req)

	response, err := p.makeRequest(ctx, request)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordLLMCall(ctx, p.model, duration, 0, 0, err)
		}
		return nil, protocol.LLMUnavailable(err)
	}

	if response.Error != "" {
		apiErr := fmt.Errorf("ollama api error: %s", response.Error)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, response.Error)
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordLLMCall(ctx, p.model, duration, 0, 0, apiErr)
		}
		return nil, protocol.LLMUnavailable(apiErr)
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensInput, response.PromptEvalCount),
		attribute.Int(observability.AttrLLMTokensOutput, response.EvalCount),
	)
	span.SetStatus(codes.Ok, "success")
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordLLMCall(ctx, p.model, duration, response.PromptEvalCount, response.EvalCount, nil)
	}

	return &Response{
		Text:         response.Message.Content,
		Thinking:     response.Message.Thinking,
		TokensInput:  response.PromptEvalCount,
		TokensOutput: response.EvalCount,
	}, nil
}

func (p *OllamaProvider) ModelName() string { return p.model }

func (p *OllamaProvider) Close() error { return nil }

// Ping probes the runtime's version endpoint. The caller's context
// bounds the wait; health checks pass a short deadline.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/version", nil)
	if err != nil {
		return protocol.LLMUnavailable(err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return protocol.LLMUnavailable(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return protocol.LLMUnavailable(fmt.Errorf("runtime answered status %d", resp.StatusCode))
	}
	return nil
}

func (p *OllamaProvider) buildRequest(req *Request) ollamaRequest {
	var messages []ollamaMessage
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	request := ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
	}

	if req.Temperature > 0 || req.MaxTokens > 0 {
		opts := &ollamaOptions{}
		if req.Temperature > 0 {
			opts.Temperature = req.Temperature
		}
		if req.MaxTokens > 0 {
			opts.NumPredict = req.MaxTokens
		}
		request.Options = opts
	}

	// The field is omitted when false: models without the capability
	// reject its mere presence.
	if req.Think {
		request.Think = true
	}

	if req.JSONFormat {
		request.Format = "json"
	}

	return request
}

func (p *OllamaProvider) makeRequest(ctx context.Context, request ollamaRequest) (*ollamaResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("call %s: %w: %s", p.baseURL, err, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("call %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

var _ Provider = (*OllamaProvider)(nil)

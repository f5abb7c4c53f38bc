package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/protocol"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OllamaProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOllamaProvider(OllamaConfig{
		BaseURL: server.URL,
		Model:   "qwen3:8b",
	})
	require.NoError(t, err)
	return p
}

func TestGenerateThinkingCall(t *testing.T) {
	var captured ollamaRequest

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(ollamaResponse{
			Model: "qwen3:8b",
			Message: ollamaMessage{
				Role:     "assistant",
				Content:  "Expenses are concentrated in rent.",
				Thinking: "The user asked about spending patterns...",
			},
			Done:            true,
			PromptEvalCount: 120,
			EvalCount:       48,
		})
	})

	resp, err := p.Generate(context.Background(), &Request{
		Prompt:       "Analyze the expenses.",
		SystemPrompt: "You are a financial analyst.",
		Think:        true,
		MaxTokens:    512,
		Temperature:  0.3,
	})
	require.NoError(t, err)

	assert.Equal(t, "qwen3:8b", captured.Model)
	assert.False(t, captured.Stream)
	assert.Equal(t, true, captured.Think)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	require.NotNil(t, captured.Options)
	assert.Equal(t, 512, captured.Options.NumPredict)
	assert.InDelta(t, 0.3, captured.Options.Temperature, 0.0001)

	assert.Equal(t, "Expenses are concentrated in rent.", resp.Text)
	assert.Equal(t, "The user asked about spending patterns...", resp.Thinking)
	assert.Equal(t, resp.Thinking, resp.Reasoning())
	assert.Equal(t, 120, resp.TokensInput)
	assert.Equal(t, 48, resp.TokensOutput)
}

func TestGenerateOmitsThinkWhenFalse(t *testing.T) {
	var rawBody map[string]interface{}

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		json.NewEncoder(w).Encode(ollamaResponse{
			Message: ollamaMessage{Role: "assistant", Content: "ok"},
			Done:    true,
		})
	})

	resp, err := p.Generate(context.Background(), &Request{Prompt: "hello", Think: false})
	require.NoError(t, err)

	_, hasThink := rawBody["think"]
	assert.False(t, hasThink, "think field must be absent for chat calls")
	assert.Equal(t, "ok", resp.Reasoning(), "reasoning falls back to text")
}

func TestGenerateJSONFormat(t *testing.T) {
	var captured ollamaRequest

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(ollamaResponse{
			Message: ollamaMessage{Role: "assistant", Content: `{"query_type":"expense"}`},
			Done:    true,
		})
	})

	_, err := p.Generate(context.Background(), &Request{Prompt: "classify", JSONFormat: true})
	require.NoError(t, err)
	assert.Equal(t, "json", captured.Format)
}

func TestGenerateAPIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Error: "model 'missing' not found"})
	})

	_, err := p.Generate(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeLLMUnavailable, protocol.CodeOf(err))
}

func TestGenerateHTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'missing' not found"}`, http.StatusNotFound)
	})

	_, err := p.Generate(context.Background(), &Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeLLMUnavailable, protocol.CodeOf(err))
}

func TestGenerateContextCancelled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaResponse{Message: ollamaMessage{Content: "late"}, Done: true})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, &Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.Default()
	reg, err := NewRegistryFromConfig(&cfg.LLM)
	require.NoError(t, err)
	defer reg.Close()

	reasoning, err := reg.Get(RoleReasoning)
	require.NoError(t, err)
	assert.Equal(t, "qwen3:8b", reasoning.ModelName())

	router, err := reg.Get(RoleRouter)
	require.NoError(t, err)
	assert.Equal(t, "qwen3:1.7b", router.ModelName())

	_, err = reg.Get(Role("reranker"))
	assert.Error(t, err)
}

func TestNewOllamaProviderRequiresModel(t *testing.T) {
	_, err := NewOllamaProvider(OllamaConfig{})
	assert.Error(t, err)
}

package config

import (
	"fmt"
	"strings"
)

// LLMConfig configures the local Ollama runtime and the two model
// roles: the reasoning model behind the agents and the small router
// model behind intent classification.
type LLMConfig struct {
	// BaseURL of the local Ollama server.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" jsonschema:"title=Base URL,description=Local Ollama endpoint,default=http://localhost:11434"`

	// ReasoningModelID is the thinking-capable model used by agents.
	ReasoningModelID string `yaml:"reasoning_model_id,omitempty" json:"reasoning_model_id,omitempty" jsonschema:"title=Reasoning Model,description=Model for agent analysis calls,default=qwen3:8b"`

	// RouterModelID is the small model used for intent classification.
	RouterModelID string `yaml:"router_model_id,omitempty" json:"router_model_id,omitempty" jsonschema:"title=Router Model,description=Model for query classification,default=qwen3:1.7b"`

	// MaxConcurrency bounds concurrent generations against the runtime.
	// Local runners typically sustain one.
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty" jsonschema:"title=Max Concurrency,description=Concurrent LLM calls,minimum=1,default=1"`

	// TimeoutSeconds bounds a thinking call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" jsonschema:"title=Timeout,description=Thinking call timeout in seconds,minimum=1,default=120"`

	// ChatTimeoutSeconds bounds a chat or classification call.
	ChatTimeoutSeconds int `yaml:"chat_timeout_seconds,omitempty" json:"chat_timeout_seconds,omitempty" jsonschema:"title=Chat Timeout,description=Chat call timeout in seconds,minimum=1,default=30"`

	// ThinkingMaxTokens is the budget for insights-mode calls.
	ThinkingMaxTokens int `yaml:"thinking_max_tokens,omitempty" json:"thinking_max_tokens,omitempty" jsonschema:"title=Thinking Max Tokens,description=Token budget for thinking calls,minimum=1,default=3072"`

	// ChatMaxTokens is the budget for chat-mode calls.
	ChatMaxTokens int `yaml:"chat_max_tokens,omitempty" json:"chat_max_tokens,omitempty" jsonschema:"title=Chat Max Tokens,description=Token budget for chat calls,minimum=1,default=512"`

	// RouterMaxTokens is the budget for classification calls.
	RouterMaxTokens int `yaml:"router_max_tokens,omitempty" json:"router_max_tokens,omitempty" jsonschema:"title=Router Max Tokens,description=Token budget for classification,minimum=1,default=256"`

	// ContextMaxTokens caps the cached-analysis context embedded in a
	// chat prompt.
	ContextMaxTokens int `yaml:"context_max_tokens,omitempty" json:"context_max_tokens,omitempty" jsonschema:"title=Context Max Tokens,description=Token budget for cached context in chat prompts,minimum=1,default=2048"`

	// Temperature for generation.
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"title=Temperature,description=Sampling temperature,minimum=0,maximum=2,default=0.3"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.ReasoningModelID == "" {
		c.ReasoningModelID = "qwen3:8b"
	}
	if c.RouterModelID == "" {
		c.RouterModelID = "qwen3:1.7b"
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 1
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 120
	}
	if c.ChatTimeoutSeconds == 0 {
		c.ChatTimeoutSeconds = 30
	}
	if c.ThinkingMaxTokens == 0 {
		c.ThinkingMaxTokens = 3072
	}
	if c.ChatMaxTokens == 0 {
		c.ChatMaxTokens = 512
	}
	if c.RouterMaxTokens == 0 {
		c.RouterMaxTokens = 256
	}
	if c.ContextMaxTokens == 0 {
		c.ContextMaxTokens = 2048
	}
	if c.Temperature == nil {
		t := 0.3
		c.Temperature = &t
	}
}

// Validate checks the configuration.
func (c *LLMConfig) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.ReasoningModelID == "" {
		return fmt.Errorf("reasoning_model_id is required")
	}
	if c.RouterModelID == "" {
		return fmt.Errorf("router_model_id is required")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.TimeoutSeconds < 1 || c.ChatTimeoutSeconds < 1 {
		return fmt.Errorf("timeouts must be at least 1 second")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be within [0,2], got %v", *c.Temperature)
	}
	return nil
}

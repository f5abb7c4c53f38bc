// Package llms is the local model client. Two roles are configured:
// the reasoning model behind agent analysis and the small router model
// behind query classification. All calls go to a local Ollama runtime.
package llms

import (
	"context"
)

// Role names a configured model slot.
type Role string

const (
	// RoleReasoning is the thinking-capable model agents call.
	RoleReasoning Role = "reasoning"
	// RoleRouter is the fast model the query understander calls.
	RoleRouter Role = "router"
)

// Request is one generation call. Think selects the runtime's thinking
// mode; the response then carries reasoning separately from the answer
// text and neither is ever post-processed for markers.
type Request struct {
	Prompt       string
	SystemPrompt string
	Think        bool
	MaxTokens    int
	Temperature  float64
	// JSONFormat asks the runtime to constrain output to a JSON object.
	JSONFormat bool
}

// Response is the runtime's reply. Thinking is populated only for
// thinking calls and must never reach a public payload.
type Response struct {
	Text         string
	Thinking     string
	TokensInput  int
	TokensOutput int
}

// Reasoning returns the captured reasoning: the dedicated thinking
// field when present, otherwise the text itself.
func (r *Response) Reasoning() string {
	if r.Thinking != "" {
		return r.Thinking
	}
	return r.Text
}

// Provider generates text against one configured model.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	ModelName() string
	Close() error
}

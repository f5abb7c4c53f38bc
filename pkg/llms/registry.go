package llms

import (
	"fmt"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/registry"
)

// Registry holds the configured model roles.
type Registry struct {
	providers *registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: registry.NewBaseRegistry[Provider]()}
}

// Register adds a provider under a role.
func (r *Registry) Register(role Role, p Provider) error {
	return r.providers.Register(string(role), p)
}

// Get returns the provider for a role.
func (r *Registry) Get(role Role) (Provider, error) {
	p, ok := r.providers.Get(string(role))
	if !ok {
		return nil, fmt.Errorf("no model configured for role %q", role)
	}
	return p, nil
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	var firstErr error
	for _, p := range r.providers.List() {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewRegistryFromConfig builds the reasoning and router providers from
// configuration. The router role gets the chat timeout: classification
// calls are short by construction.
func NewRegistryFromConfig(cfg *config.LLMConfig) (*Registry, error) {
	reasoning, err := NewOllamaProvider(OllamaConfig{
		BaseURL:        cfg.BaseURL,
		Model:          cfg.ReasoningModelID,
		TimeoutSeconds: cfg.TimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning model: %w", err)
	}

	router, err := NewOllamaProvider(OllamaConfig{
		BaseURL:        cfg.BaseURL,
		Model:          cfg.RouterModelID,
		TimeoutSeconds: cfg.ChatTimeoutSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("router model: %w", err)
	}

	r := NewRegistry()
	if err := r.Register(RoleReasoning, reasoning); err != nil {
		return nil, err
	}
	if err := r.Register(RoleRouter, router); err != nil {
		return nil, err
	}
	return r, nil
}

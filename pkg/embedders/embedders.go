package embedders

import "context"

// Provider produces embedding vectors for semantic indexing. Documents
// never leave the machine: the only implementation talks to the local
// Ollama runtime.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	Dimension() int

	ModelName() string

	Close() error
}

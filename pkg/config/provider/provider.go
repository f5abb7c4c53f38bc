// Package provider abstracts where configuration bytes come from.
// The service reads a local file; tests inject bytes directly.
package provider

import (
	"context"
	"fmt"
)

// Provider is a configuration source. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel when the source changes.
	// A nil channel means watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases resources held by the provider.
	Close() error
}

// BytesProvider serves a fixed configuration, mainly for tests and for
// the zero-config path where everything runs on defaults.
type BytesProvider struct {
	data []byte
}

// NewBytesProvider wraps raw YAML bytes as a Provider.
func NewBytesProvider(data []byte) *BytesProvider {
	return &BytesProvider{data: data}
}

func (p *BytesProvider) Load(ctx context.Context) ([]byte, error) {
	if p.data == nil {
		return []byte("{}"), nil
	}
	return p.data, nil
}

func (p *BytesProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	return nil, nil
}

func (p *BytesProvider) Close() error { return nil }

var _ Provider = (*BytesProvider)(nil)

// New returns a file provider for path, or a bytes provider over
// defaults when path is empty.
func New(path string) (Provider, error) {
	if path == "" {
		return NewBytesProvider(nil), nil
	}
	p, err := NewFileProvider(path)
	if err != nil {
		return nil, fmt.Errorf("config provider: %w", err)
	}
	return p, nil
}

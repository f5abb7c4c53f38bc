package databases

import (
	"context"
	"fmt"

	"github.com/mizanhq/mizan/pkg/config"
)

// DatabaseProvider is the vector backend behind the semantic store.
// Collections are cheap: the store gives every workspace its own, so
// isolation never depends on a filter being remembered.
type DatabaseProvider interface {
	// Name identifies the backend in logs and metric labels.
	Name() string

	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]interface{}) error

	Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error)

	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error)

	Count(ctx context.Context, collection string) (int, error)

	ListCollections(ctx context.Context) ([]string, error)

	CreateCollection(ctx context.Context, collection string, vectorSize uint64) error

	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}

type SearchResult struct {
	ID       string                 `json:"id"`
	Score    float32                `json:"score"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Range is a filter value matching numeric payload fields inclusively.
// Either bound may be nil. Non-Range filter values match as keywords.
type Range struct {
	GTE *float64
	LTE *float64
}

func (r Range) Contains(v float64) bool {
	if r.GTE != nil && v < *r.GTE {
		return false
	}
	if r.LTE != nil && v > *r.LTE {
		return false
	}
	return true
}

// NewFromConfig builds the backend selected in the store config.
func NewFromConfig(cfg *config.StoreConfig) (DatabaseProvider, error) {
	switch cfg.Backend {
	case config.BackendChromem:
		return NewChromemProvider(ChromemConfig{
			PersistPath: cfg.PersistPath,
		})
	case config.BackendQdrant:
		return NewQdrantProvider(cfg.Qdrant)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

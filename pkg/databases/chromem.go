package databases

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded vector store.
type ChromemConfig struct {
	// PersistPath stores the database on disk. Empty keeps it in memory,
	// which is what the tests and the one-shot CLI commands use.
	PersistPath string

	// Compress gzips the persisted snapshot.
	Compress bool
}

// ChromemProvider is the default backend. It runs inside the process, so
// transaction text and vectors never cross a socket.
type ChromemProvider struct {
	db     *chromem.DB
	config ChromemConfig

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemProvider opens or creates the embedded store.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB
	var err error

	if cfg.PersistPath != "" {
		if err = os.MkdirAll(filepath.Dir(cfg.PersistPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent store at %s: %w", cfg.PersistPath, err)
		}
		slog.Info("Opened persistent vector database", "path", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
		slog.Info("Created in-memory vector database (no persistence)")
	}

	return &ChromemProvider{
		db:          db,
		config:      cfg,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (p *ChromemProvider) Name() string {
	return "chromem"
}

// embeddingFunc rejects calls: every caller embeds before it gets here.
func (p *ChromemProvider) embeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
}

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	col, ok := p.collections[name]
	p.mu.RUnlock()
	if ok {
		return col, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if col, ok = p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, p.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", name, err)
	}
	p.collections[name] = col
	return col, nil
}

// lookupCollection returns nil without creating when the collection does
// not exist yet.
func (p *ChromemProvider) lookupCollection(name string) *chromem.Collection {
	p.mu.RLock()
	col, ok := p.collections[name]
	p.mu.RUnlock()
	if ok {
		return col
	}
	return p.db.GetCollection(name, p.embeddingFunc)
}

func (p *ChromemProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]interface{}) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	// chromem metadata is string-valued. Numeric fields round-trip through
	// fmt.Sprint and are parsed back when a Range filter applies.
	meta := make(map[string]string, len(metadata))
	content := ""
	for k, v := range metadata {
		if k == "content" {
			if s, ok := v.(string); ok {
				content = s
				continue
			}
		}
		meta[k] = fmt.Sprint(v)
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: vector,
		Metadata:  meta,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", id, err)
	}
	return nil
}

func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]interface{}) ([]SearchResult, error) {
	col := p.lookupCollection(collection)
	if col == nil {
		return nil, nil
	}

	total := col.Count()
	if total == 0 || topK <= 0 {
		return nil, nil
	}

	exact := make(map[string]string)
	sets := make(map[string][]string)
	ranges := make(map[string]Range)
	for k, v := range filter {
		switch fv := v.(type) {
		case Range:
			ranges[k] = fv
		case []string:
			sets[k] = fv
		default:
			exact[k] = fmt.Sprint(v)
		}
	}

	// Metadata filters are applied here after the query. A range can
	// exclude near neighbors and admit far ones, so filtered queries
	// scan the whole collection and trim back to topK.
	n := topK
	if len(filter) > 0 {
		n = total
	}
	if n > total {
		n = total
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search collection %s: %w", collection, err)
	}

	out := make([]SearchResult, 0, topK)
	for _, r := range results {
		if !matchFilter(r.Metadata, exact, sets, ranges) {
			continue
		}
		meta := make(map[string]interface{}, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out = append(out, SearchResult{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: meta,
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func matchFilter(metadata map[string]string, exact map[string]string, sets map[string][]string, ranges map[string]Range) bool {
	for key, want := range exact {
		if metadata[key] != want {
			return false
		}
	}
	for key, allowed := range sets {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, want := range allowed {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for key, rng := range ranges {
		raw, ok := metadata[key]
		if !ok {
			return false
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return false
		}
		if !rng.Contains(v) {
			return false
		}
	}
	return true
}

func (p *ChromemProvider) Count(_ context.Context, collection string) (int, error) {
	col := p.lookupCollection(collection)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

func (p *ChromemProvider) ListCollections(_ context.Context) ([]string, error) {
	names := make([]string, 0)
	for name := range p.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateCollection exists for parity with the remote backend. chromem
// creates collections on first write, so the size hint is unused.
func (p *ChromemProvider) CreateCollection(_ context.Context, collection string, _ uint64) error {
	_, err := p.getCollection(collection)
	return err
}

func (p *ChromemProvider) DeleteCollection(_ context.Context, collection string) error {
	p.mu.Lock()
	delete(p.collections, collection)
	p.mu.Unlock()

	if err := p.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", collection, err)
	}
	return nil
}

func (p *ChromemProvider) Close() error {
	p.mu.Lock()
	p.collections = make(map[string]*chromem.Collection)
	p.mu.Unlock()
	return nil
}

package config

import (
	"fmt"
)

// StoreBackend selects the vector database implementation.
type StoreBackend string

const (
	// BackendChromem is the embedded store, the zero-dependency default.
	BackendChromem StoreBackend = "chromem"
	// BackendQdrant targets a locally running Qdrant over gRPC.
	BackendQdrant StoreBackend = "qdrant"
)

// StoreConfig configures the semantic store.
type StoreConfig struct {
	// Backend picks the vector database.
	Backend StoreBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"title=Backend,description=Vector database backend,enum=chromem,enum=qdrant,default=chromem"`

	// EmbeddingModelID is the local embedding model.
	EmbeddingModelID string `yaml:"embedding_model_id,omitempty" json:"embedding_model_id,omitempty" jsonschema:"title=Embedding Model,description=Local embedding model,default=all-minilm"`

	// EmbeddingDim is the embedding vector dimension.
	EmbeddingDim int `yaml:"embedding_dim,omitempty" json:"embedding_dim,omitempty" jsonschema:"title=Embedding Dimension,description=Vector dimension of the embedding model,minimum=1,default=384"`

	// RetrievalK is the default number of documents per search.
	RetrievalK int `yaml:"retrieval_k,omitempty" json:"retrieval_k,omitempty" jsonschema:"title=Retrieval K,description=Documents returned per search,minimum=1,default=10"`

	// IndexWorkers bounds concurrent document indexing. Embedding is
	// serialized upstream, so this mostly overlaps store writes.
	IndexWorkers int `yaml:"index_workers,omitempty" json:"index_workers,omitempty" jsonschema:"title=Index Workers,description=Concurrent indexing workers,minimum=1,default=4"`

	// PersistPath, when set, persists the embedded store to disk.
	// Empty keeps everything in memory.
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty" jsonschema:"title=Persist Path,description=Optional on-disk location for the embedded store"`

	// Qdrant holds backend-specific settings when backend is qdrant.
	Qdrant QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty" jsonschema:"title=Qdrant,description=Qdrant connection settings"`
}

// QdrantConfig is the connection to a local Qdrant instance.
type QdrantConfig struct {
	Host      string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,default=localhost"`
	Port      int    `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=gRPC port,default=6334"`
	APIKey    string `yaml:"api_key,omitempty" json:"api_key,omitempty" jsonschema:"title=API Key,description=Optional API key (use ${ENV_VAR})"`
	EnableTLS *bool  `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty" jsonschema:"title=Enable TLS,default=false"`
}

// SetDefaults applies default values.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendChromem
	}
	if c.EmbeddingModelID == "" {
		c.EmbeddingModelID = "all-minilm"
	}
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = 384
	}
	if c.RetrievalK == 0 {
		c.RetrievalK = 10
	}
	if c.IndexWorkers == 0 {
		c.IndexWorkers = 4
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Qdrant.EnableTLS == nil {
		f := false
		c.Qdrant.EnableTLS = &f
	}
}

// Validate checks the configuration.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendChromem, BackendQdrant:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("embedding_dim must be at least 1, got %d", c.EmbeddingDim)
	}
	if c.RetrievalK < 1 {
		return fmt.Errorf("retrieval_k must be at least 1, got %d", c.RetrievalK)
	}
	if c.IndexWorkers < 1 {
		return fmt.Errorf("index_workers must be at least 1, got %d", c.IndexWorkers)
	}
	if c.Backend == BackendQdrant && c.Qdrant.Host == "" {
		return fmt.Errorf("qdrant.host is required for the qdrant backend")
	}
	return nil
}

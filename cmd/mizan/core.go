package main

import (
	"fmt"
	"log/slog"

	"github.com/mizanhq/mizan/pkg/cache"
	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/embedders"
	"github.com/mizanhq/mizan/pkg/ingest"
	"github.com/mizanhq/mizan/pkg/llms"
	"github.com/mizanhq/mizan/pkg/orchestrator"
	"github.com/mizanhq/mizan/pkg/router"
	"github.com/mizanhq/mizan/pkg/store"
)

// core is the wired analysis stack shared by serve and the one-shot
// commands.
type core struct {
	store     *store.SemanticStore
	cache     *cache.Cache
	orch      *orchestrator.Orchestrator
	indexer   *ingest.Indexer
	models    *llms.Registry
	reasoning llms.Provider
}

// buildCore wires the stack bottom-up: vector backend, embedder,
// store, model registry, router, orchestrator, indexer.
func buildCore(cfg *config.Config) (*core, error) {
	db, err := databases.NewFromConfig(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store backend: %w", err)
	}

	embedder, err := embedders.NewOllamaEmbedder(embedders.OllamaConfig{
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.Store.EmbeddingModelID,
		Dimension: cfg.Store.EmbeddingDim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	semStore := store.New(db, embedder, &cfg.Store)

	models, err := llms.NewRegistryFromConfig(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	reasoning, err := models.Get(llms.RoleReasoning)
	if err != nil {
		return nil, err
	}
	routerModel, err := models.Get(llms.RoleRouter)
	if err != nil {
		return nil, err
	}

	insightCache := cache.New(&cfg.Cache)

	orch, err := orchestrator.New(orchestrator.Options{
		Store:  semStore,
		Cache:  insightCache,
		Router: router.New(routerModel, cfg.LLM.RouterMaxTokens, cfg.Router.MinConfidence),
		LLM:    reasoning,
		Config: cfg,
	})
	if err != nil {
		return nil, err
	}

	return &core{
		store:     semStore,
		cache:     insightCache,
		orch:      orch,
		indexer:   ingest.NewIndexer(semStore, &cfg.Ingest),
		models:    models,
		reasoning: reasoning,
	}, nil
}

// Close releases the model clients and the store.
func (c *core) Close() {
	if err := c.models.Close(); err != nil {
		slog.Warn("Closing model clients failed", "error", err)
	}
	if err := c.store.Close(); err != nil {
		slog.Warn("Closing store failed", "error", err)
	}
}

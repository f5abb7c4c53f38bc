// Package orchestrator is the entry point for every analytical
// request. It decides between insights mode (full cold analysis over a
// single store read, cache written at the end) and chat mode (cached
// context plus an optional filtered retrieval), fans agents out, and
// assembles their results. Hidden reasoning never leaves this layer.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mizanhq/mizan/pkg/agents"
	"github.com/mizanhq/mizan/pkg/cache"
	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/llms"
	"github.com/mizanhq/mizan/pkg/protocol"
	"github.com/mizanhq/mizan/pkg/router"
	"github.com/mizanhq/mizan/pkg/store"
)

// Store is the slice of the semantic store the orchestrator reads.
// Writes stay with the indexer.
type Store interface {
	LoadTransactions(ctx context.Context, ws protocol.Workspace) ([]finance.Transaction, error)
	LoadStatement(ctx context.Context, ws protocol.Workspace) (*finance.Statement, error)
	Search(ctx context.Context, ws protocol.Workspace, queryText string, filters store.Filters, topK int) ([]databases.SearchResult, error)
}

// Understander turns free text into a routed intent.
type Understander interface {
	Understand(ctx context.Context, req router.Request) (*protocol.QueryIntent, error)
}

// Options carries the collaborators an orchestrator coordinates.
type Options struct {
	Store  Store
	Cache  *cache.Cache
	Router Understander

	// LLM is the reasoning provider. The orchestrator owns the
	// concurrency bound and threads a bounded view to agents.
	LLM llms.Provider

	Config *config.Config
}

// Orchestrator dispatches between the two execution modes.
type Orchestrator struct {
	store  Store
	cache  *cache.Cache
	router Understander
	llm    llms.Provider

	// sem bounds concurrent generations against the local runtime
	// across every request this orchestrator serves.
	sem *semaphore.Weighted

	budgets         agents.Budgets
	insightsTimeout time.Duration
}

// New wires an orchestrator from configuration.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a store")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("orchestrator requires a cache")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("orchestrator requires a router")
	}
	if opts.LLM == nil {
		return nil, fmt.Errorf("orchestrator requires an LLM provider")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	concurrency := cfg.LLM.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	timeout := time.Duration(cfg.Orchestrator.InsightsTimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	var temperature float64
	if cfg.LLM.Temperature != nil {
		temperature = *cfg.LLM.Temperature
	}

	return &Orchestrator{
		store:  opts.Store,
		cache:  opts.Cache,
		router: opts.Router,
		llm:    opts.LLM,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		budgets: agents.Budgets{
			ThinkingMaxTokens: cfg.LLM.ThinkingMaxTokens,
			ChatMaxTokens:     cfg.LLM.ChatMaxTokens,
			ContextMaxTokens:  cfg.LLM.ContextMaxTokens,
			Temperature:       temperature,
		},
		insightsTimeout: timeout,
	}, nil
}

// InvalidateCache drops the session's cached insights. An empty
// document type clears both slots.
func (o *Orchestrator) InvalidateCache(sessionID string, docType protocol.DocumentType) {
	o.cache.Clear(sessionID, docType)
}

// CacheStatus reports which cached insights the session holds.
func (o *Orchestrator) CacheStatus(sessionID string) protocol.CacheStatus {
	return o.cache.Status(sessionID)
}

// boundedProvider serializes generations through the run semaphore so
// the fan-out never exceeds the runtime's configured concurrency.
type boundedProvider struct {
	inner llms.Provider
	sem   *semaphore.Weighted
}

func (p *boundedProvider) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, protocol.LLMUnavailable(err)
	}
	defer p.sem.Release(1)
	return p.inner.Generate(ctx, req)
}

func (p *boundedProvider) ModelName() string {
	return p.inner.ModelName()
}

func (p *boundedProvider) Close() error {
	return p.inner.Close()
}

func validateWorkspace(ws protocol.Workspace) error {
	if err := ws.Validate(); err != nil {
		return protocol.Errorf(protocol.CodeInvalidQuery, "%s", err.Error())
	}
	return nil
}

func otherDocType(dt protocol.DocumentType) protocol.DocumentType {
	if dt == protocol.DocumentTypeTransactions {
		return protocol.DocumentTypeFinancial
	}
	return protocol.DocumentTypeTransactions
}

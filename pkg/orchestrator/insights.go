package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mizanhq/mizan/pkg/agents"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Insights is the assembled output of one full run. Results holds one
// slot per agent category; failed agents carry their error in the slot
// instead of failing the run.
type Insights struct {
	Results      map[protocol.AgentCategory]*protocol.AgentResult `json:"results"`
	CacheExpires time.Time                                        `json:"cache_expires"`
}

// GenerateInsights runs every agent for the workspace's document type
// over one store read, assembles the slots in canonical category order,
// and caches the full set. The cache is only written when the run
// finishes uncancelled with at least one agent succeeding.
func (o *Orchestrator) GenerateInsights(ctx context.Context, ws protocol.Workspace) (*Insights, error) {
	if err := validateWorkspace(ws); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.insightsTimeout)
	defer cancel()

	tracer := observability.GetTracer("mizan.orchestrator")
	ctx, span := tracer.Start(ctx, observability.SpanInsightsRun,
		trace.WithAttributes(
			attribute.String(observability.AttrDocumentType, string(ws.DocumentType)),
		),
	)
	defer span.End()

	start := time.Now()

	// The single store read. Agents reduce over this shared snapshot
	// and never reach back into the store.
	var (
		txns []finance.Transaction
		stmt *finance.Statement
		err  error
	)
	if ws.DocumentType == protocol.DocumentTypeFinancial {
		stmt, err = o.store.LoadStatement(ctx, ws)
	} else {
		txns, err = o.store.LoadTransactions(ctx, ws)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	roster, err := agents.All(ws.DocumentType)
	if err != nil {
		return nil, err
	}

	bounded := &boundedProvider{inner: o.llm, sem: o.sem}
	results := make([]*protocol.AgentResult, len(roster))

	g, gctx := errgroup.WithContext(ctx)
	for i, ag := range roster {
		i, ag := i, ag
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Agent panicked during insights run",
						"category", ag.Category(), "panic", r)
					results[i] = failedSlot(ag.Category(), fmt.Errorf("agent panicked: %v", r))
				}
			}()

			exec := &agents.Execution{
				Mode:         protocol.ModeInsights,
				Workspace:    ws,
				Transactions: txns,
				Statement:    stmt,
				LLM:          bounded,
				Budgets:      o.budgets,
			}
			res, err := ag.Execute(gctx, exec)
			if err != nil {
				slog.Warn("Agent failed during insights run",
					"category", ag.Category(), "error", err)
				results[i] = failedSlot(ag.Category(), err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	// A cancelled or timed-out run never caches what it got so far.
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, protocol.WrapError(protocol.CodeLLMUnavailable,
			"insights run interrupted before completion", err)
	}

	assembled := make(map[protocol.AgentCategory]*protocol.AgentResult, len(roster))
	failures := 0
	for i, ag := range roster {
		res := results[i]
		if res == nil {
			res = failedSlot(ag.Category(), fmt.Errorf("agent produced no result"))
		}
		if res.Failed() {
			failures++
		}
		assembled[ag.Category()] = res
	}

	span.SetAttributes(attribute.Int(observability.AttrAgentFailures, failures))

	if failures == len(roster) {
		err := dominantCause(results)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entry := o.cache.Put(ws.SessionID, ws.DocumentType, assembled)

	slog.Info("Insights run complete",
		"document_type", ws.DocumentType,
		"agents", len(roster),
		"failed", failures,
		"duration", time.Since(start).Round(time.Millisecond))
	span.SetStatus(codes.Ok, "completed")

	return &Insights{Results: assembled, CacheExpires: entry.ExpiresAt}, nil
}

// failedSlot encodes one agent's failure inside its result slot.
func failedSlot(cat protocol.AgentCategory, err error) *protocol.AgentResult {
	perr, ok := protocol.AsError(err)
	if !ok || perr.Code != protocol.CodeAgentFailure {
		perr = protocol.AgentFailure(cat, err)
	}
	return &protocol.AgentResult{
		Category: cat,
		Mode:     protocol.ModeInsights,
		Error:    perr,
	}
}

// dominantCause classifies an all-agents-failed run. Store failures
// outvote model failures only when strictly more slots carry them;
// everything else reads as a runtime problem.
func dominantCause(results []*protocol.AgentResult) error {
	storeTarget := protocol.NewError(protocol.CodeStoreUnavailable, "")
	var storeFailures, other int
	for _, r := range results {
		if r == nil || r.Error == nil {
			continue
		}
		if errors.Is(r.Error, storeTarget) {
			storeFailures++
		} else {
			other++
		}
	}
	if storeFailures > other {
		return protocol.NewError(protocol.CodeStoreUnavailable,
			"insights run failed: semantic store unavailable for every agent")
	}
	return protocol.NewError(protocol.CodeLLMUnavailable,
		"insights run failed: model runtime unavailable for every agent")
}

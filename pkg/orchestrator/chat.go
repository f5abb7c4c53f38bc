package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizanhq/mizan/pkg/agents"
	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
	"github.com/mizanhq/mizan/pkg/router"
	"github.com/mizanhq/mizan/pkg/store"
)

// ChatAnswer pairs the agent's reply with the understood intent so the
// transport can report how the query was routed.
type ChatAnswer struct {
	Result    *protocol.AgentResult
	Intent    *protocol.QueryIntent
	Retrieved int
}

// ProcessChatQuery answers one question from cached insights. The
// query is routed first; chat against a cold cache fails with
// CacheMissing rather than silently re-running insights, and a cached
// run whose routed slot errored counts as cold for that slot.
// Non-empty intent filters trigger one targeted retrieval, retried
// unfiltered when the filtered read fails.
func (o *Orchestrator) ProcessChatQuery(ctx context.Context, ws protocol.Workspace, query string) (*ChatAnswer, error) {
	if err := validateWorkspace(ws); err != nil {
		return nil, err
	}

	tracer := observability.GetTracer("mizan.orchestrator")
	ctx, span := tracer.Start(ctx, observability.SpanChatQuery,
		trace.WithAttributes(
			attribute.String(observability.AttrDocumentType, string(ws.DocumentType)),
		),
	)
	defer span.End()

	intent, err := o.router.Understand(ctx, router.Request{
		Query:        query,
		DocumentType: ws.DocumentType,
		UploadID:     ws.UploadID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String(observability.AttrQueryType, string(intent.QueryType)),
		attribute.String(observability.AttrAgentCategory, string(intent.AgentRouting.Primary)),
	)

	cached := o.cache.Get(ctx, ws.SessionID, ws.DocumentType)
	if cached == nil {
		status := o.cache.Status(ws.SessionID)
		if status.HasTransactionInsights || status.HasFinancialInsights {
			err := protocol.DocumentTypeMismatch(ws.DocumentType, otherDocType(ws.DocumentType))
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		err := protocol.CacheMissing(ws.SessionID, ws.DocumentType)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if slot := cached.Results[intent.AgentRouting.Primary]; slot == nil || slot.Failed() {
		err := protocol.CacheMissing(ws.SessionID, ws.DocumentType).
			WithDetail("agent_category", string(intent.AgentRouting.Primary))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	retrieved, filtered, err := o.retrieve(ctx, ws, intent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ag, err := agents.ForCategory(intent.AgentRouting.Primary)
	if err != nil {
		return nil, err
	}

	exec := &agents.Execution{
		Query:     query,
		Mode:      protocol.ModeChat,
		Workspace: ws,
		Cached:    cached,
		Retrieved: retrieved,
		Filtered:  filtered,
		Intent:    intent,
		LLM:       &boundedProvider{inner: o.llm, sem: o.sem},
		Budgets:   o.budgets,
	}
	result, err := ag.Execute(ctx, exec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int(observability.AttrStoreResults, len(retrieved)))
	span.SetStatus(codes.Ok, "answered")

	return &ChatAnswer{Result: result, Intent: intent, Retrieved: len(retrieved)}, nil
}

// retrieve runs the optional filtered retrieval. An empty filter set
// means the cached analysis alone carries the answer; a failed filtered
// read is retried once without filters before surfacing the error.
func (o *Orchestrator) retrieve(ctx context.Context, ws protocol.Workspace, intent *protocol.QueryIntent) ([]databases.SearchResult, bool, error) {
	if intent.Filters.Empty() {
		return nil, false, nil
	}

	queryText := retrievalQuery(intent)
	results, err := o.store.Search(ctx, ws, queryText, storeFilters(intent.Filters), 0)
	if err == nil {
		return results, true, nil
	}

	slog.Warn("Filtered retrieval failed, retrying unfiltered",
		"document_type", ws.DocumentType, "error", err)
	results, err = o.store.Search(ctx, ws, queryText, store.Filters{}, 0)
	if err != nil {
		return nil, false, err
	}
	return results, false, nil
}

// retrievalQuery is the text embedded for the targeted search. Merchant
// names and vocabulary keywords ride along: they match descriptions
// semantically, not through metadata.
func retrievalQuery(intent *protocol.QueryIntent) string {
	parts := make([]string, 0, len(intent.SearchTerms)+len(intent.Filters.Merchants)+len(intent.Filters.Keywords))
	parts = append(parts, intent.SearchTerms...)
	parts = append(parts, intent.Filters.Merchants...)
	parts = append(parts, intent.Filters.Keywords...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// storeFilters maps intent filters onto store conditions. Date bounds
// are inclusive days; stored documents carry midnight-UTC timestamps so
// parsing the day string keeps the end day inside the interval.
func storeFilters(f protocol.QueryFilters) store.Filters {
	out := store.Filters{
		Type:      f.TransactionType,
		AmountMin: f.AmountMin,
		AmountMax: f.AmountMax,
	}
	if f.DateStart != "" {
		if t, err := time.Parse("2006-01-02", f.DateStart); err == nil {
			out.DateFrom = &t
		}
	}
	if f.DateEnd != "" {
		if t, err := time.Parse("2006-01-02", f.DateEnd); err == nil {
			out.DateTo = &t
		}
	}
	return out
}

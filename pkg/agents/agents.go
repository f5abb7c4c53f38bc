// Package agents implements the analysis agents: six over bank
// transactions and six over financial statements. Every agent follows
// the same two-mode contract. Insights mode runs a thinking call, a
// deterministic reduction over the pre-retrieved data, and a final
// narrative call. Chat mode answers in one short call from cached
// analysis and an optional filtered retrieval. The numeric work always
// happens in the reduction; the model narrates, it never computes.
package agents

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/llms"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// maxSources caps the exemplar records attached to a result.
const maxSources = 5

// Budgets carries the generation limits threaded from configuration.
type Budgets struct {
	ThinkingMaxTokens int
	ChatMaxTokens     int
	ContextMaxTokens  int
	Temperature       float64
}

func (b Budgets) withDefaults() Budgets {
	if b.ThinkingMaxTokens <= 0 {
		b.ThinkingMaxTokens = 3072
	}
	if b.ChatMaxTokens <= 0 {
		b.ChatMaxTokens = 512
	}
	if b.ContextMaxTokens <= 0 {
		b.ContextMaxTokens = 2048
	}
	return b
}

// Execution is the copy-in context for one agent run. The orchestrator
// fills it once per request; agents never reach back into the store or
// the cache themselves.
type Execution struct {
	Query     string
	Mode      protocol.Mode
	Workspace protocol.Workspace

	// Pre-retrieved data, one of the two depending on document type.
	Transactions []finance.Transaction
	Statement    *finance.Statement

	// Chat-mode context.
	Cached    *protocol.CachedInsights
	Retrieved []databases.SearchResult
	Filtered  bool
	Intent    *protocol.QueryIntent

	// LLM is already concurrency-bounded by the caller.
	LLM     llms.Provider
	Budgets Budgets
}

// cachedResult returns this agent's slot from the cached insights.
func (e *Execution) cachedResult(cat protocol.AgentCategory) *protocol.AgentResult {
	if e.Cached == nil {
		return nil
	}
	return e.Cached.Result(cat)
}

// Reduction is the deterministic output an agent computes before any
// narrative call. Summary is the tabular rendering embedded in the
// final prompt; Analysis is what callers serialize.
type Reduction struct {
	Analysis   map[string]interface{}
	Statistics map[string]interface{}
	Sources    []protocol.Source
	Summary    string
}

// analyzer is the per-agent core: a reduction plus the prompt aspects
// that shape the thinking call.
type analyzer interface {
	Category() protocol.AgentCategory
	Aspects(exec *Execution) Aspects
	Reduce(exec *Execution) (*Reduction, error)
}

// Agent executes one analysis category in either mode.
type Agent struct {
	core analyzer
}

// Category names the agent on the wire.
func (a *Agent) Category() protocol.AgentCategory {
	return a.core.Category()
}

// ForCategory returns the agent implementing a category.
func ForCategory(cat protocol.AgentCategory) (*Agent, error) {
	var core analyzer
	switch cat {
	case protocol.CategoryExpense:
		core = &expenseAnalyzer{}
	case protocol.CategoryIncome:
		core = &incomeAnalyzer{}
	case protocol.CategoryFee:
		core = &feeAnalyzer{}
	case protocol.CategoryBudget:
		core = &budgetAnalyzer{}
	case protocol.CategoryTrend:
		core = &trendAnalyzer{}
	case protocol.CategoryTransaction:
		core = &searchAnalyzer{}
	case protocol.CategoryRatio:
		core = &ratioAnalyzer{}
	case protocol.CategoryProfitability:
		core = &profitabilityAnalyzer{}
	case protocol.CategoryLiquidity:
		core = &liquidityAnalyzer{}
	case protocol.CategoryFinancialTrend:
		core = &financialTrendAnalyzer{}
	case protocol.CategoryRisk:
		core = &riskAnalyzer{}
	case protocol.CategoryEfficiency:
		core = &efficiencyAnalyzer{}
	default:
		return nil, fmt.Errorf("unknown agent category %q", cat)
	}
	return &Agent{core: core}, nil
}

// All returns the agents for a document type in canonical order.
func All(dt protocol.DocumentType) ([]*Agent, error) {
	cats := protocol.CategoriesFor(dt)
	out := make([]*Agent, 0, len(cats))
	for _, cat := range cats {
		a, err := ForCategory(cat)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Execute runs the agent in the mode carried by the execution context.
func (a *Agent) Execute(ctx context.Context, exec *Execution) (result *protocol.AgentResult, err error) {
	cat := a.core.Category()

	tracer := observability.GetTracer("mizan.agents")
	ctx, span := tracer.Start(ctx, observability.SpanAgentRun,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentCategory, string(cat)),
			attribute.String(observability.AttrAgentMode, string(exec.Mode)),
			attribute.String(observability.AttrDocumentType, string(exec.Workspace.DocumentType)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if m := observability.GetGlobalMetrics(); m != nil {
			m.RecordAgentRun(ctx, string(cat), string(exec.Mode), time.Since(start), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "completed")
		}
	}()

	switch exec.Mode {
	case protocol.ModeChat:
		result, err = a.executeChat(ctx, exec)
	default:
		result, err = a.executeInsights(ctx, exec)
	}
	return result, err
}

// executeInsights is the two-call pattern. The reduction sits between
// the calls: the final prompt embeds both the captured reasoning and
// the computed numbers so the narrative cannot drift from them.
func (a *Agent) executeInsights(ctx context.Context, exec *Execution) (*protocol.AgentResult, error) {
	cat := a.core.Category()
	budgets := exec.Budgets.withDefaults()

	if emptyInput(exec) {
		red, err := a.core.Reduce(exec)
		if err != nil {
			return nil, protocol.AgentFailure(cat, err)
		}
		return &protocol.AgentResult{
			Category:    cat,
			FinalAnswer: noDataAnswer(exec.Workspace.DocumentType),
			Analysis:    red.Analysis,
			Mode:        protocol.ModeInsights,
			Statistics:  red.Statistics,
		}, nil
	}

	thinkingResp, err := exec.LLM.Generate(ctx, &llms.Request{
		Prompt:       thinkingPrompt(cat, exec.Query, a.core.Aspects(exec)),
		SystemPrompt: systemPrompt,
		Think:        true,
		MaxTokens:    budgets.ThinkingMaxTokens,
		Temperature:  budgets.Temperature,
	})
	if err != nil {
		return nil, protocol.AgentFailure(cat, err)
	}

	red, err := a.core.Reduce(exec)
	if err != nil {
		return nil, protocol.AgentFailure(cat, err)
	}

	finalResp, err := exec.LLM.Generate(ctx, &llms.Request{
		Prompt:       finalPrompt(cat, exec.Query, thinkingResp.Reasoning(), red.Summary),
		SystemPrompt: systemPrompt,
		Think:        true,
		MaxTokens:    budgets.ThinkingMaxTokens,
		Temperature:  budgets.Temperature,
	})
	if err != nil {
		return nil, protocol.AgentFailure(cat, err)
	}

	return &protocol.AgentResult{
		Category:    cat,
		FinalAnswer: finalResp.Text,
		Analysis:    red.Analysis,
		Thinking:    thinkingResp.Reasoning(),
		Mode:        protocol.ModeInsights,
		Sources:     capSources(red.Sources),
		Statistics:  red.Statistics,
	}, nil
}

// executeChat is the one-call pattern over cached analysis. Filtered
// retrieval, when present, outranks the cache in the prompt.
func (a *Agent) executeChat(ctx context.Context, exec *Execution) (*protocol.AgentResult, error) {
	cat := a.core.Category()
	budgets := exec.Budgets.withDefaults()

	prompt, sources := chatPrompt(cat, exec, budgets.ContextMaxTokens)
	resp, err := exec.LLM.Generate(ctx, &llms.Request{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Think:        false,
		MaxTokens:    budgets.ChatMaxTokens,
		Temperature:  budgets.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &protocol.AgentResult{
		Category:    cat,
		FinalAnswer: resp.Text,
		Mode:        protocol.ModeChat,
		UsedCache:   true,
		Sources:     capSources(sources),
	}, nil
}

func emptyInput(exec *Execution) bool {
	if exec.Workspace.DocumentType == protocol.DocumentTypeFinancial {
		return exec.Statement == nil || exec.Statement.Empty()
	}
	return len(exec.Transactions) == 0
}

func noDataAnswer(dt protocol.DocumentType) string {
	if dt == protocol.DocumentTypeFinancial {
		return "No data available: the upload contains no statement line items to analyze."
	}
	return "No data available: the upload contains no transactions to analyze."
}

func capSources(sources []protocol.Source) []protocol.Source {
	if len(sources) > maxSources {
		return sources[:maxSources]
	}
	return sources
}

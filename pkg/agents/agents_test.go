package agents

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/llms"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// fakeLLM records every request and replies with a fixed response.
type fakeLLM struct {
	mu    sync.Mutex
	calls []llms.Request
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, *req)
	if f.err != nil {
		return nil, f.err
	}
	return &llms.Response{Text: "narrative answer", Thinking: "private reasoning"}, nil
}

func (f *fakeLLM) ModelName() string { return "fake-reasoning" }
func (f *fakeLLM) Close() error      { return nil }

func (f *fakeLLM) requests() []llms.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llms.Request(nil), f.calls...)
}

// scenarioTransactions is the canonical small history: two GOSI debits,
// one office rent debit, one client invoice credit.
func scenarioTransactions() []finance.Transaction {
	return []finance.Transaction{
		{Date: day(2024, 1, 10), Description: "GOSI Monthly", Amount: -19000, Type: finance.Debit},
		{Date: day(2024, 2, 1), Description: "Client INV-7", Amount: 520000, Type: finance.Credit},
		{Date: day(2024, 2, 10), Description: "GOSI Monthly", Amount: -19000, Type: finance.Debit},
		{Date: day(2024, 2, 15), Description: "Office Rent", Amount: -85000, Type: finance.Debit},
	}
}

func transactionsWorkspace() protocol.Workspace {
	return protocol.Workspace{
		SessionID:    "sess-1",
		UploadID:     "upload-1",
		DocumentType: protocol.DocumentTypeTransactions,
	}
}

func financialWorkspace() protocol.Workspace {
	return protocol.Workspace{
		SessionID:    "sess-1",
		UploadID:     "upload-2",
		DocumentType: protocol.DocumentTypeFinancial,
	}
}

// sampleStatement is a small trading company with healthy margins and
// moderate leverage.
func sampleStatement() *finance.Statement {
	return &finance.Statement{
		CompanyInfo: finance.CompanyInfo{Name: "Nahda Trading", Sector: "retail"},
		Periods:     finance.Periods{Current: "2024", Prior: "2023"},
		BalanceSheet: map[string]map[string]finance.ValuePair{
			"current_assets": {
				"cash and cash equivalents": {Current: 800000, Prior: 600000},
				"accounts receivable":       {Current: 650000, Prior: 500000},
				"inventory":                 {Current: 550000, Prior: 520000},
				"total current assets":      {Current: 2000000, Prior: 1620000},
			},
			"totals": {
				"total assets":      {Current: 4000000, Prior: 3500000},
				"total liabilities": {Current: 1800000, Prior: 1700000},
				"total equity":      {Current: 2200000, Prior: 1800000},
			},
			"current_liabilities": {
				"accounts payable":          {Current: 400000, Prior: 380000},
				"zakat provision":           {Current: 60000, Prior: 50000},
				"total current liabilities": {Current: 1000000, Prior: 950000},
			},
		},
		IncomeStatement: map[string]map[string]finance.ValuePair{
			"revenue": {
				"net sales": {Current: 5200000, Prior: 4100000},
			},
			"costs": {
				"cost of goods sold": {Current: 3400000, Prior: 2800000},
				"depreciation":       {Current: 120000, Prior: 110000},
				"interest expense":   {Current: 90000, Prior: 80000},
			},
			"results": {
				"operating income": {Current: 950000, Prior: 640000},
				"net income":       {Current: 720000, Prior: 460000},
			},
		},
		CashFlow: map[string]map[string]finance.ValuePair{
			"operating": {
				"net cash from operating activities": {Current: 810000, Prior: 520000},
			},
		},
		Ratios: map[string]finance.ValuePair{
			"current_ratio": {Current: 2.0, Prior: 1.71},
		},
	}
}

func TestInsightsModeMakesTwoThinkingCalls(t *testing.T) {
	llm := &fakeLLM{}
	agent, err := ForCategory(protocol.CategoryExpense)
	require.NoError(t, err)

	result, err := agent.Execute(context.Background(), &Execution{
		Query:        "Generate expense insights",
		Mode:         protocol.ModeInsights,
		Workspace:    transactionsWorkspace(),
		Transactions: scenarioTransactions(),
		LLM:          llm,
	})
	require.NoError(t, err)

	calls := llm.requests()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Think)
	assert.True(t, calls[1].Think)
	assert.Contains(t, calls[1].Prompt, "Computed figures",
		"final prompt embeds the reduction summary")
	assert.Contains(t, calls[1].Prompt, "private reasoning",
		"final prompt embeds the captured thinking")

	assert.Equal(t, protocol.ModeInsights, result.Mode)
	assert.Equal(t, "narrative answer", result.FinalAnswer)
	assert.Equal(t, "private reasoning", result.Thinking)
	assert.False(t, result.UsedCache)
	assert.NotEmpty(t, result.Sources)
	assert.Equal(t, 123000.0, result.Analysis["total"])
}

func TestInsightsEmptyInputSkipsModelCalls(t *testing.T) {
	llm := &fakeLLM{}
	agent, err := ForCategory(protocol.CategoryExpense)
	require.NoError(t, err)

	result, err := agent.Execute(context.Background(), &Execution{
		Mode:      protocol.ModeInsights,
		Workspace: transactionsWorkspace(),
		LLM:       llm,
	})
	require.NoError(t, err)

	assert.Empty(t, llm.requests(), "no data means no model calls")
	assert.Contains(t, result.FinalAnswer, "No data available")
	assert.Equal(t, 0.0, result.Analysis["total"])
	assert.Equal(t, 0, result.Analysis["transaction_count"])
}

func TestInsightsModelErrorWrapsAgentFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}
	agent, err := ForCategory(protocol.CategoryIncome)
	require.NoError(t, err)

	_, err = agent.Execute(context.Background(), &Execution{
		Mode:         protocol.ModeInsights,
		Workspace:    transactionsWorkspace(),
		Transactions: scenarioTransactions(),
		LLM:          llm,
	})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeAgentFailure, protocol.CodeOf(err))

	e, ok := protocol.AsError(err)
	require.True(t, ok)
	assert.Equal(t, string(protocol.CategoryIncome), e.Details["agent_category"])
}

func TestChatModeSingleCallUsesCache(t *testing.T) {
	llm := &fakeLLM{}
	agent, err := ForCategory(protocol.CategoryExpense)
	require.NoError(t, err)

	cached := &protocol.CachedInsights{
		SessionID:    "sess-1",
		DocumentType: protocol.DocumentTypeTransactions,
		Results: map[protocol.AgentCategory]*protocol.AgentResult{
			protocol.CategoryExpense: {
				Category:    protocol.CategoryExpense,
				FinalAnswer: "Total expenses were 123000 SAR.",
				Analysis:    map[string]interface{}{"total": 123000.0},
				Thinking:    "secret scratchpad",
			},
		},
	}

	result, err := agent.Execute(context.Background(), &Execution{
		Query:     "How much did I spend on GOSI?",
		Mode:      protocol.ModeChat,
		Workspace: transactionsWorkspace(),
		Cached:    cached,
		LLM:       llm,
	})
	require.NoError(t, err)

	calls := llm.requests()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Think)
	assert.Contains(t, calls[0].Prompt, "Total expenses were 123000 SAR.")
	assert.NotContains(t, calls[0].Prompt, "secret scratchpad",
		"thinking never enters a prompt")

	assert.Equal(t, protocol.ModeChat, result.Mode)
	assert.True(t, result.UsedCache)
	assert.Empty(t, result.Thinking)
}

func TestChatFilteredRetrievalOutranksCache(t *testing.T) {
	llm := &fakeLLM{}
	agent, err := ForCategory(protocol.CategoryTransaction)
	require.NoError(t, err)

	result, err := agent.Execute(context.Background(), &Execution{
		Query:     "GOSI payments in January",
		Mode:      protocol.ModeChat,
		Workspace: transactionsWorkspace(),
		Retrieved: []databases.SearchResult{
			{ID: "doc-1", Score: 0.91, Content: "2024-01-10 GOSI Monthly -19000.00 debit"},
		},
		Filtered: true,
		LLM:      llm,
	})
	require.NoError(t, err)

	calls := llm.requests()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "background only")
	assert.Contains(t, calls[0].Prompt, "2024-01-10 GOSI Monthly -19000.00 debit")

	require.Len(t, result.Sources, 1)
	assert.Equal(t, "doc-1", result.Sources[0].ID)
	assert.InDelta(t, 0.91, result.Sources[0].Score, 1e-6)
}

func TestChatModelErrorPropagatesUnwrapped(t *testing.T) {
	sentinel := errors.New("model offline")
	llm := &fakeLLM{err: sentinel}
	agent, err := ForCategory(protocol.CategoryExpense)
	require.NoError(t, err)

	_, err = agent.Execute(context.Background(), &Execution{
		Query:     "anything",
		Mode:      protocol.ModeChat,
		Workspace: transactionsWorkspace(),
		LLM:       llm,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel),
		"chat errors pass through for the orchestrator to classify")
	assert.NotEqual(t, protocol.CodeAgentFailure, protocol.CodeOf(err))
}

func TestForCategoryRejectsUnknown(t *testing.T) {
	_, err := ForCategory(protocol.AgentCategory("astrology"))
	assert.Error(t, err)
}

func TestAllReturnsCanonicalOrder(t *testing.T) {
	agents, err := All(protocol.DocumentTypeTransactions)
	require.NoError(t, err)
	cats := make([]protocol.AgentCategory, len(agents))
	for i, a := range agents {
		cats[i] = a.Category()
	}
	assert.Equal(t, protocol.TransactionCategories(), cats)

	agents, err = All(protocol.DocumentTypeFinancial)
	require.NoError(t, err)
	cats = make([]protocol.AgentCategory, len(agents))
	for i, a := range agents {
		cats[i] = a.Category()
	}
	assert.Equal(t, protocol.FinancialCategories(), cats)
}

func TestFinancialInsightsEmptyStatement(t *testing.T) {
	llm := &fakeLLM{}
	agent, err := ForCategory(protocol.CategoryRatio)
	require.NoError(t, err)

	result, err := agent.Execute(context.Background(), &Execution{
		Mode:      protocol.ModeInsights,
		Workspace: financialWorkspace(),
		Statement: &finance.Statement{},
		LLM:       llm,
	})
	require.NoError(t, err)
	assert.Empty(t, llm.requests())
	assert.Contains(t, result.FinalAnswer, "No data available")
}

func TestReductionDeterminism(t *testing.T) {
	for _, cat := range protocol.TransactionCategories() {
		agent, err := ForCategory(cat)
		require.NoError(t, err)
		exec := &Execution{
			Query:        "monthly overview",
			Transactions: scenarioTransactions(),
			Workspace:    transactionsWorkspace(),
		}
		first, err := agent.core.Reduce(exec)
		require.NoError(t, err, cat)
		second, err := agent.core.Reduce(exec)
		require.NoError(t, err, cat)
		assert.Equal(t, first.Analysis, second.Analysis, cat)
		assert.Equal(t, first.Summary, second.Summary, cat)
	}

	for _, cat := range protocol.FinancialCategories() {
		agent, err := ForCategory(cat)
		require.NoError(t, err)
		exec := &Execution{
			Query:     "statement overview",
			Statement: sampleStatement(),
			Workspace: financialWorkspace(),
		}
		first, err := agent.core.Reduce(exec)
		require.NoError(t, err, cat)
		second, err := agent.core.Reduce(exec)
		require.NoError(t, err, cat)
		assert.Equal(t, first.Analysis, second.Analysis, cat)
		assert.Equal(t, first.Summary, second.Summary, cat)
	}
}

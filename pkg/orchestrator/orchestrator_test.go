package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/cache"
	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/llms"
	"github.com/mizanhq/mizan/pkg/protocol"
	"github.com/mizanhq/mizan/pkg/router"
	"github.com/mizanhq/mizan/pkg/store"
)

// fakeLLM replies with a fixed response and tracks how many calls run
// at once, which is how the semaphore bound is asserted.
type fakeLLM struct {
	mu          sync.Mutex
	calls       []llms.Request
	inflight    int
	maxInflight int
	sawDeadline bool

	text          string
	err           error
	failSubstring string
	onCall        func()
}

func (f *fakeLLM) Generate(ctx context.Context, req *llms.Request) (*llms.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *req)
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	if _, ok := ctx.Deadline(); ok {
		f.sawDeadline = true
	}
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.failSubstring != "" && strings.Contains(req.Prompt, f.failSubstring) {
		return nil, protocol.LLMUnavailable(errors.New("model rejected request"))
	}
	text := f.text
	if text == "" {
		text = "narrative answer"
	}
	return &llms.Response{Text: text, Thinking: "private reasoning"}, nil
}

func (f *fakeLLM) ModelName() string { return "fake-reasoning" }
func (f *fakeLLM) Close() error      { return nil }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) lastRequest() llms.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeLLM) maxInflightSeen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

// fakeStore scripts load and search outcomes and records the filters
// every search arrived with.
type fakeStore struct {
	mu         sync.Mutex
	txns       []finance.Transaction
	stmt       *finance.Statement
	results    []databases.SearchResult
	loadErr    error
	searchErr  error
	failSearch bool

	loadCalls  int
	searches   []store.Filters
	searchWs   []protocol.Workspace
	queryTexts []string
}

func (f *fakeStore) LoadTransactions(ctx context.Context, ws protocol.Workspace) ([]finance.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.txns, nil
}

func (f *fakeStore) LoadStatement(ctx context.Context, ws protocol.Workspace) (*finance.Statement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.stmt, nil
}

func (f *fakeStore) Search(ctx context.Context, ws protocol.Workspace, queryText string, filters store.Filters, topK int) ([]databases.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, filters)
	f.searchWs = append(f.searchWs, ws)
	f.queryTexts = append(f.queryTexts, queryText)
	if f.failSearch {
		return nil, protocol.StoreUnavailable(errors.New("backend down"))
	}
	if f.searchErr != nil && len(f.searches) == 1 {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeStore) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

// fakeUnderstander returns a canned intent with the request's upload id
// stamped in, mirroring the router contract.
type fakeUnderstander struct {
	intent *protocol.QueryIntent
	err    error
	calls  int
}

func (f *fakeUnderstander) Understand(ctx context.Context, req router.Request) (*protocol.QueryIntent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	intent := *f.intent
	intent.UploadID = req.UploadID
	return &intent, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleTransactions() []finance.Transaction {
	return []finance.Transaction{
		{Date: day(2024, 1, 10), Description: "GOSI Monthly", Amount: -19000, Type: finance.Debit},
		{Date: day(2024, 2, 1), Description: "Client INV-7", Amount: 520000, Type: finance.Credit},
		{Date: day(2024, 2, 10), Description: "GOSI Monthly", Amount: -19000, Type: finance.Debit},
		{Date: day(2024, 2, 15), Description: "Office Rent", Amount: -85000, Type: finance.Debit},
	}
}

func sampleStatement() *finance.Statement {
	return &finance.Statement{
		CompanyInfo: finance.CompanyInfo{Name: "Nahda Trading", Sector: "retail"},
		Periods:     finance.Periods{Current: "2024", Prior: "2023"},
		BalanceSheet: map[string]map[string]finance.ValuePair{
			"current_assets": {
				"cash and cash equivalents": {Current: 500000, Prior: 400000},
				"inventory":                 {Current: 250000, Prior: 230000},
			},
			"current_liabilities": {
				"accounts payable": {Current: 300000, Prior: 280000},
			},
		},
		IncomeStatement: map[string]map[string]finance.ValuePair{
			"revenue":  {"revenue": {Current: 2000000, Prior: 1800000}},
			"expenses": {"cost of goods sold": {Current: 1200000, Prior: 1100000}},
		},
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

func chatIntent(primary protocol.AgentCategory, filters protocol.QueryFilters) *protocol.QueryIntent {
	return &protocol.QueryIntent{
		QueryType:    protocol.QueryExpense,
		Filters:      filters,
		AgentRouting: protocol.AgentRouting{Primary: primary},
		Confidence:   0.9,
		SearchTerms:  []string{"gosi payments"},
	}
}

func newTestOrchestrator(t *testing.T, st Store, llm llms.Provider, u Understander) (*Orchestrator, *cache.Cache) {
	t.Helper()
	cfg := config.Default()
	c := cache.New(&cfg.Cache)
	o, err := New(Options{Store: st, Cache: c, Router: u, LLM: llm, Config: cfg})
	require.NoError(t, err)
	return o, c
}

func TestGenerateInsightsAssemblesAllAgents(t *testing.T) {
	llm := &fakeLLM{text: "solid quarter"}
	st := &fakeStore{txns: sampleTransactions()}
	o, c := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	ws := transactionsWorkspace()
	insights, err := o.GenerateInsights(context.Background(), ws)
	require.NoError(t, err)
	require.NotNil(t, insights)

	require.Len(t, insights.Results, len(protocol.TransactionCategories()))
	for _, cat := range protocol.TransactionCategories() {
		res := insights.Results[cat]
		require.NotNil(t, res, "missing slot for %s", cat)
		assert.Equal(t, cat, res.Category)
		assert.Equal(t, protocol.ModeInsights, res.Mode)
		assert.False(t, res.Failed())
		assert.Equal(t, "solid quarter", res.FinalAnswer)
	}

	assert.Equal(t, 1, st.loadCalls, "agents must share one store read")
	assert.True(t, insights.CacheExpires.After(time.Now()))
	assert.True(t, llm.sawDeadline, "insights run must carry a deadline")

	cached := c.Get(context.Background(), ws.SessionID, ws.DocumentType)
	require.NotNil(t, cached)
	assert.Len(t, cached.Results, len(protocol.TransactionCategories()))
	assert.Equal(t, insights.CacheExpires, cached.ExpiresAt)
}

func TestGenerateInsightsFinancialStatement(t *testing.T) {
	llm := &fakeLLM{}
	st := &fakeStore{stmt: sampleStatement()}
	o, _ := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	insights, err := o.GenerateInsights(context.Background(), financialWorkspace())
	require.NoError(t, err)

	keys := make([]protocol.AgentCategory, 0, len(insights.Results))
	for cat := range insights.Results {
		keys = append(keys, cat)
	}
	assert.ElementsMatch(t, protocol.FinancialCategories(), keys)
	assert.Equal(t, 1, st.loadCalls)
}

func TestGenerateInsightsIsolatesAgentFailure(t *testing.T) {
	llm := &fakeLLM{failSubstring: "the expense analysis"}
	st := &fakeStore{txns: sampleTransactions()}
	o, c := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	ws := transactionsWorkspace()
	insights, err := o.GenerateInsights(context.Background(), ws)
	require.NoError(t, err, "one failed agent must not fail the run")

	failed := insights.Results[protocol.CategoryExpense]
	require.NotNil(t, failed)
	require.True(t, failed.Failed())
	assert.Equal(t, protocol.CodeAgentFailure, failed.Error.Code)
	assert.Empty(t, failed.FinalAnswer)

	for _, cat := range protocol.TransactionCategories() {
		if cat == protocol.CategoryExpense {
			continue
		}
		assert.False(t, insights.Results[cat].Failed(), "category %s", cat)
	}

	// Partial insights stay usable: the cache is still written.
	assert.NotNil(t, c.Get(context.Background(), ws.SessionID, ws.DocumentType))
}

func TestGenerateInsightsAllAgentsFailed(t *testing.T) {
	llm := &fakeLLM{err: protocol.LLMUnavailable(errors.New("connection refused"))}
	st := &fakeStore{txns: sampleTransactions()}
	o, c := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	ws := transactionsWorkspace()
	_, err := o.GenerateInsights(context.Background(), ws)
	require.Error(t, err)
	assert.Equal(t, protocol.CodeLLMUnavailable, protocol.CodeOf(err))
	assert.Nil(t, c.Get(context.Background(), ws.SessionID, ws.DocumentType))
}

func TestGenerateInsightsStoreFailurePropagates(t *testing.T) {
	llm := &fakeLLM{}
	st := &fakeStore{loadErr: protocol.StoreUnavailable(errors.New("backend down"))}
	o, _ := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	_, err := o.GenerateInsights(context.Background(), transactionsWorkspace())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeStoreUnavailable, protocol.CodeOf(err))
	assert.Zero(t, llm.callCount(), "no agent may run without data")
}

func TestGenerateInsightsBoundsConcurrency(t *testing.T) {
	llm := &fakeLLM{}
	st := &fakeStore{txns: sampleTransactions()}
	o, _ := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	_, err := o.GenerateInsights(context.Background(), transactionsWorkspace())
	require.NoError(t, err)

	// Six agents, two calls each, never more than one in flight with
	// the default max_concurrency of 1.
	assert.Equal(t, 12, llm.callCount())
	assert.Equal(t, 1, llm.maxInflightSeen())
}

func TestGenerateInsightsCancelledRunNotCached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	llm := &fakeLLM{}
	llm.onCall = cancel
	st := &fakeStore{txns: sampleTransactions()}
	o, c := newTestOrchestrator(t, st, llm, &fakeUnderstander{})

	_, err := o.GenerateInsights(ctx, transactionsWorkspace())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeLLMUnavailable, protocol.CodeOf(err))
	assert.Zero(t, c.Len(), "a cancelled run must not cache partial results")
}

func TestGenerateInsightsRejectsIncompleteWorkspace(t *testing.T) {
	llm := &fakeLLM{}
	o, _ := newTestOrchestrator(t, &fakeStore{}, llm, &fakeUnderstander{})

	_, err := o.GenerateInsights(context.Background(), protocol.Workspace{
		SessionID:    "sess-1",
		DocumentType: protocol.DocumentTypeTransactions,
	})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInvalidQuery, protocol.CodeOf(err))
	assert.Zero(t, llm.callCount())
}

func TestDominantCause(t *testing.T) {
	storeDown := protocol.StoreUnavailable(errors.New("down"))
	llmDown := protocol.LLMUnavailable(errors.New("refused"))

	mostlyStore := []*protocol.AgentResult{
		{Error: protocol.AgentFailure(protocol.CategoryExpense, storeDown)},
		{Error: protocol.AgentFailure(protocol.CategoryIncome, storeDown)},
		{Error: protocol.AgentFailure(protocol.CategoryFee, llmDown)},
	}
	assert.Equal(t, protocol.CodeStoreUnavailable, protocol.CodeOf(dominantCause(mostlyStore)))

	tied := []*protocol.AgentResult{
		{Error: protocol.AgentFailure(protocol.CategoryExpense, storeDown)},
		{Error: protocol.AgentFailure(protocol.CategoryIncome, llmDown)},
	}
	assert.Equal(t, protocol.CodeLLMUnavailable, protocol.CodeOf(dominantCause(tied)))
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	c := cache.New(&cfg.Cache)

	_, err := New(Options{Cache: c, Router: &fakeUnderstander{}, LLM: &fakeLLM{}, Config: cfg})
	assert.Error(t, err)

	_, err = New(Options{Store: &fakeStore{}, Router: &fakeUnderstander{}, LLM: &fakeLLM{}, Config: cfg})
	assert.Error(t, err)
}

func TestInvalidateCache(t *testing.T) {
	o, c := newTestOrchestrator(t, &fakeStore{}, &fakeLLM{}, &fakeUnderstander{})

	results := map[protocol.AgentCategory]*protocol.AgentResult{
		protocol.CategoryExpense: {Category: protocol.CategoryExpense, FinalAnswer: "x"},
	}
	c.Put("sess-1", protocol.DocumentTypeTransactions, results)
	c.Put("sess-1", protocol.DocumentTypeFinancial, results)

	o.InvalidateCache("sess-1", protocol.DocumentTypeTransactions)
	status := o.CacheStatus("sess-1")
	assert.False(t, status.HasTransactionInsights)
	assert.True(t, status.HasFinancialInsights)

	o.InvalidateCache("sess-1", "")
	status = o.CacheStatus("sess-1")
	assert.False(t, status.HasFinancialInsights)
}

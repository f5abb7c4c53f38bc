// Package protocol defines the wire-level contracts shared by every
// subsystem: workspace tags, agent results, cached insights, query
// intents, and the error taxonomy. Nothing here performs I/O.
package protocol

import (
	"fmt"
	"time"
)

// DocumentType distinguishes the two independent analysis namespaces.
type DocumentType string

const (
	DocumentTypeTransactions DocumentType = "transactions"
	DocumentTypeFinancial    DocumentType = "financial"
)

// Valid reports whether dt is one of the closed set.
func (dt DocumentType) Valid() bool {
	return dt == DocumentTypeTransactions || dt == DocumentTypeFinancial
}

// AgentCategory is the stable wire identifier of an agent kind.
type AgentCategory string

const (
	// Transaction agents.
	CategoryExpense     AgentCategory = "expense"
	CategoryIncome      AgentCategory = "income"
	CategoryFee         AgentCategory = "fee"
	CategoryBudget      AgentCategory = "budget"
	CategoryTrend       AgentCategory = "trend"
	CategoryTransaction AgentCategory = "transaction"

	// Financial statement agents.
	CategoryRatio          AgentCategory = "ratio"
	CategoryProfitability  AgentCategory = "profitability"
	CategoryLiquidity      AgentCategory = "liquidity"
	CategoryFinancialTrend AgentCategory = "financial_trend"
	CategoryRisk           AgentCategory = "risk"
	CategoryEfficiency     AgentCategory = "efficiency"
)

// TransactionCategories returns the transaction agent set in canonical
// presentation order. Result maps are assembled in this order.
func TransactionCategories() []AgentCategory {
	return []AgentCategory{
		CategoryExpense,
		CategoryIncome,
		CategoryFee,
		CategoryBudget,
		CategoryTrend,
		CategoryTransaction,
	}
}

// FinancialCategories returns the financial agent set in canonical order.
func FinancialCategories() []AgentCategory {
	return []AgentCategory{
		CategoryRatio,
		CategoryProfitability,
		CategoryLiquidity,
		CategoryFinancialTrend,
		CategoryRisk,
		CategoryEfficiency,
	}
}

// CategoriesFor returns the canonical agent set for a document type.
func CategoriesFor(dt DocumentType) []AgentCategory {
	if dt == DocumentTypeFinancial {
		return FinancialCategories()
	}
	return TransactionCategories()
}

// QueryType classifies a chat query. Closed set, stable wire values.
type QueryType string

const (
	QueryRatioAnalysis         QueryType = "ratio_analysis"
	QueryProfitabilityAnalysis QueryType = "profitability_analysis"
	QueryLiquidityAnalysis     QueryType = "liquidity_analysis"
	QueryRiskAssessment        QueryType = "risk_assessment"
	QueryEfficiencyAnalysis    QueryType = "efficiency_analysis"
	QueryTrendAnalysis         QueryType = "trend_analysis"
	QueryMultiStatement        QueryType = "multi_statement"
	QuerySpecificLineItem      QueryType = "specific_line_item"
	QueryGeneralOverview       QueryType = "general_overview"
	QueryExpense               QueryType = "expense"
	QueryIncome                QueryType = "income"
	QueryFee                   QueryType = "fee"
	QueryBudget                QueryType = "budget"
	QueryTransactionSearch     QueryType = "transaction_search"
)

// QueryTypes returns every recognized query type.
func QueryTypes() []QueryType {
	return []QueryType{
		QueryRatioAnalysis, QueryProfitabilityAnalysis, QueryLiquidityAnalysis,
		QueryRiskAssessment, QueryEfficiencyAnalysis, QueryTrendAnalysis,
		QueryMultiStatement, QuerySpecificLineItem, QueryGeneralOverview,
		QueryExpense, QueryIncome, QueryFee, QueryBudget, QueryTransactionSearch,
	}
}

// Mode distinguishes the two agent execution modes.
type Mode string

const (
	ModeInsights Mode = "insights"
	ModeChat     Mode = "chat"
)

// Workspace is the isolation tag carried by every indexed document and
// required by every retrieval: upload_id is the strong key.
type Workspace struct {
	SessionID    string       `json:"session_id"`
	UploadID     string       `json:"upload_id"`
	DocumentType DocumentType `json:"document_type"`
}

// Validate checks that the tag is complete enough to pin retrieval.
func (w Workspace) Validate() error {
	if w.SessionID == "" {
		return fmt.Errorf("workspace missing session_id")
	}
	if w.UploadID == "" {
		return fmt.Errorf("workspace missing upload_id")
	}
	if !w.DocumentType.Valid() {
		return fmt.Errorf("workspace has unknown document type %q", w.DocumentType)
	}
	return nil
}

// Source is an exemplar record attached to an AgentResult.
type Source struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// AgentResult is the output of one agent run. Thinking is captured for
// the final-call prompt but is never serialized anywhere.
type AgentResult struct {
	Category    AgentCategory          `json:"agent_category"`
	FinalAnswer string                 `json:"final_answer"`
	Analysis    map[string]interface{} `json:"analysis,omitempty"`
	Thinking    string                 `json:"-"`
	Mode        Mode                   `json:"mode"`
	UsedCache   bool                   `json:"used_cache"`
	Sources     []Source               `json:"sources,omitempty"`
	Statistics  map[string]interface{} `json:"statistics,omitempty"`
	Error       *Error                 `json:"error,omitempty"`
}

// Failed reports whether this slot encodes a per-agent failure.
func (r *AgentResult) Failed() bool {
	return r != nil && r.Error != nil
}

// CachedInsights is the cache value per (session_id, document_type).
type CachedInsights struct {
	SessionID    string                         `json:"session_id"`
	DocumentType DocumentType                   `json:"document_type"`
	Results      map[AgentCategory]*AgentResult `json:"results"`
	GeneratedAt  time.Time                      `json:"generated_at"`
	ExpiresAt    time.Time                      `json:"expires_at"`
}

// Result returns the cached slot for a category, nil when absent.
func (c *CachedInsights) Result(cat AgentCategory) *AgentResult {
	if c == nil {
		return nil
	}
	return c.Results[cat]
}

// CacheStatus reports which cached insights a session currently holds.
type CacheStatus struct {
	HasTransactionInsights       bool       `json:"has_transaction_insights"`
	HasFinancialInsights         bool       `json:"has_financial_insights"`
	TransactionInsightsExpiresAt *time.Time `json:"transaction_insights_expires_at,omitempty"`
	FinancialInsightsExpiresAt   *time.Time `json:"financial_insights_expires_at,omitempty"`
}

// QueryFilters are the structured constraints extracted from a chat
// query. Date bounds are RFC3339 days; amount bounds are absolute SAR.
type QueryFilters struct {
	DateStart       string   `json:"date_start,omitempty" jsonschema:"description=inclusive start day YYYY-MM-DD"`
	DateEnd         string   `json:"date_end,omitempty" jsonschema:"description=inclusive end day YYYY-MM-DD"`
	AmountMin       *float64 `json:"amount_min,omitempty" jsonschema:"description=minimum absolute amount in SAR"`
	AmountMax       *float64 `json:"amount_max,omitempty" jsonschema:"description=maximum absolute amount in SAR"`
	Merchants       []string `json:"merchants,omitempty" jsonschema:"description=merchant or counterparty names"`
	Keywords        []string `json:"keywords,omitempty" jsonschema:"description=banking vocabulary matched in descriptions"`
	TransactionType string   `json:"transaction_type,omitempty" jsonschema:"enum=credit,enum=debit,description=restrict to one direction"`
}

// Empty reports whether no filter is set.
func (f QueryFilters) Empty() bool {
	return f.DateStart == "" && f.DateEnd == "" &&
		f.AmountMin == nil && f.AmountMax == nil &&
		len(f.Merchants) == 0 && len(f.Keywords) == 0 &&
		f.TransactionType == ""
}

// AgentRouting names the agents a query should reach.
type AgentRouting struct {
	Primary   AgentCategory   `json:"primary" jsonschema:"description=agent that answers the query"`
	Secondary []AgentCategory `json:"secondary,omitempty" jsonschema:"description=supporting agents"`
}

// QueryIntent is the structured output of the query understander.
// UploadID is copied verbatim from the request and is always present.
type QueryIntent struct {
	QueryType    QueryType    `json:"query_type" jsonschema:"enum=ratio_analysis,enum=profitability_analysis,enum=liquidity_analysis,enum=risk_assessment,enum=efficiency_analysis,enum=trend_analysis,enum=multi_statement,enum=specific_line_item,enum=general_overview,enum=expense,enum=income,enum=fee,enum=budget,enum=transaction_search"`
	Filters      QueryFilters `json:"filters"`
	UploadID     string       `json:"upload_id"`
	AgentRouting AgentRouting `json:"agent_routing"`
	Confidence   float64      `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	SearchTerms  []string     `json:"search_terms,omitempty" jsonschema:"description=short phrases to embed for retrieval"`
}

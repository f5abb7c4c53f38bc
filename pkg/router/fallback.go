package router

import (
	"strings"

	"github.com/mizanhq/mizan/pkg/protocol"
)

// fallbackConfidence marks intents produced by the keyword matcher.
// Exactly at the routing threshold: deterministic classifications
// route by their query type, not the conservative default.
const fallbackConfidence = 0.5

// fallbackRule maps trigger phrases to a query type. Rules are scanned
// in order and the first hit wins, so narrower vocabularies go first.
type fallbackRule struct {
	queryType protocol.QueryType
	phrases   []string
}

var transactionRules = []fallbackRule{
	{protocol.QueryFee, []string{
		"fee", "fees", "charge", "charges", "charged", "commission",
	}},
	{protocol.QueryIncome, []string{
		"income", "salary", "salaries", "deposit", "deposits", "earned",
		"incoming", "revenue",
	}},
	{protocol.QueryBudget, []string{
		"budget", "savings", "saving", "save", "surplus", "afford",
		"net position",
	}},
	{protocol.QueryTrendAnalysis, []string{
		"trend", "trends", "over time", "month over month", "increasing",
		"decreasing", "pattern", "patterns", "trajectory",
	}},
	{protocol.QueryTransactionSearch, []string{
		"find", "search", "show", "list", "look up", "locate", "which", "when",
	}},
	{protocol.QueryExpense, []string{
		"expense", "expenses", "spend", "spending", "spent", "cost", "costs",
		"paid", "payment", "payments",
	}},
}

var financialRules = []fallbackRule{
	{protocol.QueryLiquidityAnalysis, []string{
		"liquidity", "liquid", "working capital", "current ratio",
		"quick ratio", "cash ratio", "cash conversion",
	}},
	{protocol.QueryProfitabilityAnalysis, []string{
		"profit", "profits", "profitability", "margin", "margins", "ebitda",
		"earnings",
	}},
	{protocol.QueryEfficiencyAnalysis, []string{
		"efficiency", "efficient", "turnover", "dso", "dio", "dpo",
		"utilization", "collection period",
	}},
	{protocol.QueryRiskAssessment, []string{
		"risk", "risks", "risky", "leverage", "debt", "solvency", "distress",
		"zakat", "compliance", "warning", "warnings",
	}},
	{protocol.QueryTrendAnalysis, []string{
		"trend", "trends", "growth", "grew", "cagr", "year over year", "yoy",
		"qoq", "quarter over quarter", "seasonal",
	}},
	{protocol.QueryMultiStatement, []string{
		"across statements", "all statements", "between statements",
		"both statements",
	}},
	{protocol.QuerySpecificLineItem, []string{
		"line item", "what was the", "how much was", "value of",
	}},
	{protocol.QueryRatioAnalysis, []string{
		"ratio", "ratios", "roa", "roe", "coverage", "return on",
	}},
}

// fallbackIntent classifies by phrase table alone. Unmatched queries
// become a general overview, which routes to the conservative default
// for the document type.
func fallbackIntent(query string, dt protocol.DocumentType) *protocol.QueryIntent {
	norm := " " + strings.Join(tokenize(query), " ") + " "
	rules := transactionRules
	if dt == protocol.DocumentTypeFinancial {
		rules = financialRules
	}
	qt := protocol.QueryGeneralOverview
	for _, rule := range rules {
		if matchesAny(norm, rule.phrases) {
			qt = rule.queryType
			break
		}
	}
	return &protocol.QueryIntent{QueryType: qt, Confidence: fallbackConfidence}
}

func matchesAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(norm, " "+p+" ") {
			return true
		}
	}
	return false
}

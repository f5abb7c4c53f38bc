package router

import "github.com/mizanhq/mizan/pkg/protocol"

// defaultCategory is the conservative routing target when confidence
// is low or the query type belongs to the other document family.
func defaultCategory(dt protocol.DocumentType) protocol.AgentCategory {
	if dt == protocol.DocumentTypeFinancial {
		return protocol.CategoryRatio
	}
	return protocol.CategoryExpense
}

// primaryFor maps a query type to the agent that answers it.
func primaryFor(qt protocol.QueryType, dt protocol.DocumentType) protocol.AgentCategory {
	if dt == protocol.DocumentTypeFinancial {
		switch qt {
		case protocol.QueryRatioAnalysis:
			return protocol.CategoryRatio
		case protocol.QueryProfitabilityAnalysis:
			return protocol.CategoryProfitability
		case protocol.QueryLiquidityAnalysis:
			return protocol.CategoryLiquidity
		case protocol.QueryRiskAssessment:
			return protocol.CategoryRisk
		case protocol.QueryEfficiencyAnalysis:
			return protocol.CategoryEfficiency
		case protocol.QueryTrendAnalysis, protocol.QueryMultiStatement:
			return protocol.CategoryFinancialTrend
		case protocol.QuerySpecificLineItem:
			// Line-item lookups ride the ratio agent: retrieval supplies
			// the matching rows, the agent narrates them.
			return protocol.CategoryRatio
		}
		return defaultCategory(dt)
	}

	switch qt {
	case protocol.QueryExpense:
		return protocol.CategoryExpense
	case protocol.QueryIncome:
		return protocol.CategoryIncome
	case protocol.QueryFee:
		return protocol.CategoryFee
	case protocol.QueryBudget:
		return protocol.CategoryBudget
	case protocol.QueryTrendAnalysis:
		return protocol.CategoryTrend
	case protocol.QueryTransactionSearch:
		return protocol.CategoryTransaction
	}
	return defaultCategory(dt)
}

// sanitizeSecondary keeps only categories of the same document family,
// deduplicated, never repeating the primary.
func sanitizeSecondary(in []protocol.AgentCategory, primary protocol.AgentCategory, dt protocol.DocumentType) []protocol.AgentCategory {
	if len(in) == 0 {
		return nil
	}
	valid := make(map[protocol.AgentCategory]bool)
	for _, c := range protocol.CategoriesFor(dt) {
		valid[c] = true
	}
	seen := map[protocol.AgentCategory]bool{primary: true}
	var out []protocol.AgentCategory
	for _, c := range in {
		if valid[c] && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// knownQueryType reports membership in the closed query type set.
func knownQueryType(qt protocol.QueryType) bool {
	for _, t := range protocol.QueryTypes() {
		if t == qt {
			return true
		}
	}
	return false
}

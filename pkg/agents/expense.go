package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// expenseAnalyzer breaks spending down by the keyword taxonomy.
type expenseAnalyzer struct{}

func (a *expenseAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryExpense
}

func (a *expenseAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "the full range of uploaded transactions",
		Categories:       "Saudi business expense taxonomy: " + strings.Join(finance.ExpenseCategories.Keys(), ", ") + ", uncategorized",
		AnalysisType:     "spending breakdown by category with share of total and outlier detection",
		BusinessContext:  "a Saudi business current account; GOSI, QIWA and SADAD entries are government obligations, not discretionary spend",
		DataRequirements: "debit amounts, descriptions, and dates",
		OpenQuestions:    "whether spending concentrates in one category and whether any single payment is an outlier",
		OutputFormat:     "key findings first, then category totals with percentages",
	}
}

func (a *expenseAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	debits := finance.Debits(exec.Transactions)
	total := finance.SumAbs(debits)

	categories, order := categorize(debits)

	topCategories := make([]interface{}, 0, len(order))
	for i, r := range order {
		if i == 5 {
			break
		}
		entry := map[string]interface{}{
			"category": r.name,
			"total":    r.total,
		}
		if pct := safePct(r.total, total); pct != nil {
			entry["percentage"] = *pct
		}
		topCategories = append(topCategories, entry)
	}

	largest := largestByAbs(debits)
	anomalies := amountAnomalies(debits)

	analysis := map[string]interface{}{
		"total":             total,
		"transaction_count": len(debits),
		"categories":        categories,
		"top_categories":    topCategories,
		"anomalies":         anomalies,
	}
	if largest != nil {
		analysis["largest_expense"] = transactionEntry(*largest)
	}
	if from, to, ok := dateRange(debits); ok {
		analysis["date_range"] = map[string]interface{}{"from": from, "to": to}
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"debit_count":    len(debits),
			"category_count": len(order),
			"anomaly_count":  len(anomalies),
		},
		Sources: transactionSources(topNByAbs(debits, maxSources)),
		Summary: a.summarize(total, len(debits), order, largest, len(anomalies)),
	}, nil
}

func (a *expenseAnalyzer) summarize(total float64, count int, order []categoryRank, largest *finance.Transaction, anomalyCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total expenses: %s SAR across %d debits\n", protocol.FormatAmount(total), count)
	if len(order) > 0 {
		b.WriteString("By category:\n")
		for _, r := range order {
			line := fmt.Sprintf("- %s: %s SAR, %d transactions", r.name, protocol.FormatAmount(r.total), r.count)
			if pct := safePct(r.total, total); pct != nil {
				line += fmt.Sprintf(" (%.2f%%)", *pct)
			}
			b.WriteString(line + "\n")
		}
	}
	if largest != nil {
		fmt.Fprintf(&b, "Largest expense: %s, %s SAR on %s\n",
			strings.TrimSpace(largest.Description),
			protocol.FormatAmount(largest.Abs()),
			protocol.FormatDay(largest.Date))
	}
	fmt.Fprintf(&b, "Amount outliers (z-score above %.1f): %d\n", zScoreThreshold, anomalyCount)
	return b.String()
}


package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// incomeAnalyzer groups credits by source and scores how steady the
// monthly inflow is.
type incomeAnalyzer struct{}

func (a *incomeAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryIncome
}

func (a *incomeAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "the full range of uploaded transactions, bucketed by calendar month",
		Categories:       "income taxonomy: " + strings.Join(finance.IncomeCategories.Keys(), ", ") + ", other_income",
		AnalysisType:     "income source breakdown, recurring inflow detection, and month-over-month stability",
		BusinessContext:  "a Saudi business current account; recurring equal-amount credits usually mean contract revenue or salary",
		DataRequirements: "credit amounts, descriptions, and dates",
		OpenQuestions:    "how concentrated income is in a single source and whether inflows arrive on a regular cadence",
		OutputFormat:     "key findings first, then source totals and the stability score",
	}
}

func (a *incomeAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	credits := finance.Credits(exec.Transactions)
	total := finance.SumAbs(credits)

	categories, order := categorize(credits)
	months, totals := monthlyTotals(credits)

	monthly := make([]interface{}, len(months))
	for i, m := range months {
		monthly[i] = map[string]interface{}{"month": m, "total": totals[i]}
	}

	var monthlyAverage interface{}
	if len(months) > 0 {
		monthlyAverage = protocol.Round2(total / float64(len(months)))
	}

	stability := stabilityScore(totals)
	recurring := recurringCredits(credits)
	largest := largestByAbs(credits)

	analysis := map[string]interface{}{
		"total":             total,
		"transaction_count": len(credits),
		"categories":        categories,
		"monthly_totals":    monthly,
		"monthly_average":   monthlyAverage,
		"stability_score":   deref(stability),
		"recurring_income":  recurring,
	}
	if largest != nil {
		analysis["largest_income"] = transactionEntry(*largest)
	}
	if from, to, ok := dateRange(credits); ok {
		analysis["date_range"] = map[string]interface{}{"from": from, "to": to}
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"credit_count":    len(credits),
			"months_covered":  len(months),
			"recurring_count": len(recurring),
		},
		Sources: transactionSources(topNByAbs(credits, maxSources)),
		Summary: a.summarize(total, len(credits), order, months, stability, recurring),
	}, nil
}

func (a *incomeAnalyzer) summarize(total float64, count int, order []categoryRank, months []string, stability *float64, recurring []interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total income: %s SAR across %d credits over %d months\n", protocol.FormatAmount(total), count, len(months))
	if stability != nil {
		fmt.Fprintf(&b, "Stability score: %.1f of 100\n", *stability)
	} else {
		b.WriteString("Stability score: not enough months to score\n")
	}
	if len(order) > 0 {
		b.WriteString("By category:\n")
		for _, r := range order {
			line := fmt.Sprintf("- %s: %s SAR, %d credits", r.name, protocol.FormatAmount(r.total), r.count)
			if pct := safePct(r.total, total); pct != nil {
				line += fmt.Sprintf(" (%.2f%%)", *pct)
			}
			b.WriteString(line + "\n")
		}
	}
	fmt.Fprintf(&b, "Recurring inflows detected: %d\n", len(recurring))
	return b.String()
}

// stabilityScore is 100*(1-cv) over monthly totals, clipped to
// [0,100]. Nil with fewer than two months.
func stabilityScore(monthTotals []float64) *float64 {
	cv := coefficientOfVariation(monthTotals)
	if cv == nil {
		return nil
	}
	score := clipScore(100*(1-*cv), 0, 100)
	score = protocol.Round2(score)
	return &score
}

// recurringCredits renders the recurring signatures of the credit
// side for the analysis block.
func recurringCredits(credits []finance.Transaction) []interface{} {
	signatures := recurringSignatures(credits)
	recurring := make([]interface{}, len(signatures))
	for i, sig := range signatures {
		recurring[i] = map[string]interface{}{
			"description":      sig.Description,
			"amount":           sig.Amount,
			"occurrences":      sig.Occurrences,
			"average_gap_days": protocol.Round2(sig.GapDays),
			"cadence":          sig.Cadence,
		}
	}
	return recurring
}

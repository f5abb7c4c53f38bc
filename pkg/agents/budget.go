package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// budgetAnalyzer nets inflow against outflow and scores budget health
// on the additive ladder.
type budgetAnalyzer struct{}

func (a *budgetAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryBudget
}

func (a *budgetAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "the full range of uploaded transactions",
		Categories:       "savings rate, expense ratio, and per-category share of income",
		AnalysisType:     "budget health scoring with a per-category status",
		BusinessContext:  "a Saudi business current account; a healthy operation keeps the expense ratio under 85% of inflow",
		DataRequirements: "signed amounts and directions for every transaction",
		OpenQuestions:    "whether the business saves at a sustainable rate and which categories run over budget",
		OutputFormat:     "the health score first, then the rates and category statuses",
	}
}

func (a *budgetAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	credits := finance.Credits(exec.Transactions)
	debits := finance.Debits(exec.Transactions)
	income := finance.SumAbs(credits)
	expenses := finance.SumAbs(debits)
	net := protocol.Round2(income - expenses)

	savingsRate := safePct(net, income)
	expenseRatio := safePct(expenses, income)

	_, order := categorize(debits)
	categories := make(map[string]interface{}, len(order))
	statuses := make(map[string]string, len(order))
	for _, r := range order {
		share := safePct(r.total, income)
		status := budgetStatus(share)
		statuses[r.name] = status
		entry := map[string]interface{}{
			"total":  r.total,
			"count":  r.count,
			"status": status,
		}
		if share != nil {
			entry["percentage_of_income"] = *share
		}
		categories[r.name] = entry
	}

	var health interface{}
	var score float64
	scored := len(exec.Transactions) > 0
	if scored {
		score = budgetHealthScore(savingsRate, expenseRatio, statuses)
		health = score
	}

	analysis := map[string]interface{}{
		"income_total":      income,
		"expense_total":     expenses,
		"net":               net,
		"savings_rate":      deref(savingsRate),
		"expense_ratio":     deref(expenseRatio),
		"categories":        categories,
		"health_score":      health,
		"transaction_count": len(exec.Transactions),
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"credit_count":   len(credits),
			"debit_count":    len(debits),
			"category_count": len(order),
		},
		Sources: transactionSources(topNByAbs(exec.Transactions, maxSources)),
		Summary: a.summarize(income, expenses, net, savingsRate, expenseRatio, statuses, health),
	}, nil
}

func (a *budgetAnalyzer) summarize(income, expenses, net float64, savingsRate, expenseRatio *float64, statuses map[string]string, health interface{}) string {
	var b strings.Builder
	if score, ok := health.(float64); ok {
		fmt.Fprintf(&b, "Budget health score: %.0f of 100\n", score)
	} else {
		b.WriteString("Budget health score: no data to score\n")
	}
	fmt.Fprintf(&b, "Income: %s SAR, Expenses: %s SAR, Net: %s SAR\n",
		protocol.FormatAmount(income), protocol.FormatAmount(expenses), protocol.FormatAmount(net))
	if savingsRate != nil {
		fmt.Fprintf(&b, "Savings rate: %.2f%%\n", *savingsRate)
	}
	if expenseRatio != nil {
		fmt.Fprintf(&b, "Expense ratio: %.2f%%\n", *expenseRatio)
	}
	over := make([]string, 0)
	for name, status := range statuses {
		if status == "over_budget" {
			over = append(over, name)
		}
	}
	if len(over) > 0 {
		fmt.Fprintf(&b, "Categories over budget: %s\n", strings.Join(over, ", "))
	}
	return b.String()
}

// budgetStatus grades a category by its share of income. With no
// income every spend is over budget.
func budgetStatus(shareOfIncome *float64) string {
	if shareOfIncome == nil {
		return "over_budget"
	}
	switch {
	case *shareOfIncome <= 10:
		return "excellent"
	case *shareOfIncome <= 20:
		return "good"
	case *shareOfIncome <= 35:
		return "warning"
	default:
		return "over_budget"
	}
}

// budgetHealthScore applies the additive ladder. Base 50; savings rate
// and expense ratio land their bands; each category status adds its
// step; the result clips to [0,100]. A missing rate counts as the
// worst band.
func budgetHealthScore(savingsRate, expenseRatio *float64, statuses map[string]string) float64 {
	score := 50.0

	switch {
	case savingsRate == nil:
		score -= 20
	case *savingsRate >= 20:
		score += 30
	case *savingsRate >= 10:
		score += 20
	case *savingsRate >= 5:
		score += 10
	case *savingsRate < 0:
		score -= 20
	}

	switch {
	case expenseRatio == nil:
		score -= 10
	case *expenseRatio <= 70:
		score += 20
	case *expenseRatio <= 85:
		score += 10
	case *expenseRatio > 100:
		score -= 10
	}

	for _, status := range statuses {
		switch status {
		case "excellent", "good":
			score += 7
		case "warning":
			score += 3
		}
	}

	return clipScore(score, 0, 100)
}

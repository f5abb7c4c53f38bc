package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// feeAnalyzer hunts bank charges and prices out what cutting the
// recurring ones would save over a year.
type feeAnalyzer struct{}

func (a *feeAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryFee
}

func (a *feeAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "the full range of uploaded transactions",
		Categories:       "bank fees, service charges, commissions, SWIFT and transfer charges",
		AnalysisType:     "fee detection, share of total spend, and annualized cost of recurring charges",
		BusinessContext:  "Saudi banks charge fixed tariff amounts; small round debits naming a bank are usually fees even without a fee keyword",
		DataRequirements: "debit amounts, descriptions, and dates",
		OpenQuestions:    "which fees recur monthly and what switching or negotiating would save per year",
		OutputFormat:     "key findings first, then the fee list and the annualized savings figure",
	}
}

func (a *feeAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	debits := finance.Debits(exec.Transactions)
	totalExpenses := finance.SumAbs(debits)

	fees := make([]finance.Transaction, 0)
	for _, tx := range debits {
		if finance.LooksLikeFee(tx.Description, tx.Abs()) {
			fees = append(fees, tx)
		}
	}
	totalFees := finance.SumAbs(fees)

	entries := make([]interface{}, len(fees))
	for i, tx := range fees {
		entries[i] = transactionEntry(tx)
	}

	recurring, annualized := recurringMonthlyFees(fees)

	analysis := map[string]interface{}{
		"total_fees":             totalFees,
		"fee_count":              len(fees),
		"percentage_of_expenses": deref(safePct(totalFees, totalExpenses)),
		"fees":                   entries,
		"recurring_monthly":      recurring,
		"annualized_savings":     annualized,
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"debit_count":     len(debits),
			"fee_count":       len(fees),
			"recurring_count": len(recurring),
		},
		Sources: transactionSources(topNByAbs(fees, maxSources)),
		Summary: a.summarize(totalFees, len(fees), totalExpenses, recurring, annualized),
	}, nil
}

func (a *feeAnalyzer) summarize(totalFees float64, feeCount int, totalExpenses float64, recurring []interface{}, annualized float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bank fees: %s SAR across %d charges\n", protocol.FormatAmount(totalFees), feeCount)
	if pct := safePct(totalFees, totalExpenses); pct != nil {
		fmt.Fprintf(&b, "Share of total expenses: %.2f%%\n", *pct)
	}
	fmt.Fprintf(&b, "Recurring monthly fees: %d\n", len(recurring))
	fmt.Fprintf(&b, "Annualized cost of recurring fees: %s SAR\n", protocol.FormatAmount(annualized))
	return b.String()
}

// recurringMonthlyFees keeps the fee signatures on a monthly cadence
// and prices their twelve-month cost.
func recurringMonthlyFees(fees []finance.Transaction) ([]interface{}, float64) {
	recurring := make([]interface{}, 0)
	var annualized float64
	for _, sig := range recurringSignatures(fees) {
		if sig.Cadence != "monthly" {
			continue
		}
		yearly := protocol.Round2(sig.Amount * 12)
		recurring = append(recurring, map[string]interface{}{
			"description":      sig.Description,
			"amount":           sig.Amount,
			"occurrences":      sig.Occurrences,
			"average_gap_days": protocol.Round2(sig.GapDays),
			"annualized":       yearly,
		})
		annualized += yearly
	}
	return recurring, protocol.Round2(annualized)
}

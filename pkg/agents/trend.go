package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Slope bands for the trend direction, in SAR per month.
const slopeBand = 100.0

// trendAnalyzer fits a least-squares line through monthly debit
// totals.
type trendAnalyzer struct{}

func (a *trendAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryTrend
}

func (a *trendAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "calendar months across the uploaded transactions",
		Categories:       "monthly spending totals, trend direction, and month extremes",
		AnalysisType:     "least-squares trend over month-bucketed debit totals",
		BusinessContext:  "a Saudi business current account; one-off large payments can dominate a month without marking a trend",
		DataRequirements: "debit amounts and dates spanning at least two months",
		OpenQuestions:    "whether spending is drifting up or down and which months drove the movement",
		OutputFormat:     "the direction and slope first, then the month-by-month totals",
	}
}

func (a *trendAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	debits := finance.Debits(exec.Transactions)
	months, totals := monthlyTotals(debits)

	monthly := make([]interface{}, len(months))
	var highest, lowest int
	for i, m := range months {
		monthly[i] = map[string]interface{}{"month": m, "total": totals[i]}
		if totals[i] > totals[highest] {
			highest = i
		}
		if totals[i] < totals[lowest] {
			lowest = i
		}
	}

	direction := "insufficient_data"
	var slopeValue, changeValue interface{}
	if len(months) >= 2 {
		if slope, ok := linearSlope(totals); ok {
			slopeValue = protocol.Round2(slope)
			switch {
			case slope > slopeBand:
				direction = "increasing"
			case slope < -slopeBand:
				direction = "decreasing"
			default:
				direction = "stable"
			}
		}
		first, last := totals[0], totals[len(totals)-1]
		changeValue = deref(safePct(last-first, first))
	}

	analysis := map[string]interface{}{
		"direction":         direction,
		"slope_per_month":   slopeValue,
		"monthly_totals":    monthly,
		"change_percentage": changeValue,
		"months_covered":    len(months),
	}
	if len(months) > 0 {
		analysis["highest_month"] = map[string]interface{}{"month": months[highest], "total": totals[highest]}
		analysis["lowest_month"] = map[string]interface{}{"month": months[lowest], "total": totals[lowest]}
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"debit_count":    len(debits),
			"months_covered": len(months),
		},
		Sources: transactionSources(topNByAbs(debits, maxSources)),
		Summary: a.summarize(direction, slopeValue, months, totals),
	}, nil
}

func (a *trendAnalyzer) summarize(direction string, slope interface{}, months []string, totals []float64) string {
	var b strings.Builder
	if s, ok := slope.(float64); ok {
		fmt.Fprintf(&b, "Spending trend: %s at %s SAR per month\n", direction, protocol.FormatAmount(s))
	} else {
		fmt.Fprintf(&b, "Spending trend: %s\n", direction)
	}
	fmt.Fprintf(&b, "Months covered: %d\n", len(months))
	for i, m := range months {
		fmt.Fprintf(&b, "- %s: %s SAR\n", m, protocol.FormatAmount(totals[i]))
	}
	return b.String()
}

package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Margin thresholds a healthy business clears, in percent of revenue.
const (
	grossMarginThreshold     = 30.0
	operatingMarginThreshold = 15.0
	ebitdaMarginThreshold    = 20.0
	netMarginThreshold       = 10.0
)

// profitabilityAnalyzer works the four margins and their year-over-year
// movement. Margin health counts how many thresholds the current
// period clears.
type profitabilityAnalyzer struct{}

func (a *profitabilityAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryProfitability
}

func (a *profitabilityAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "current reporting period against the prior one",
		Categories:       "gross, operating, EBITDA, and net margins plus growth rates",
		AnalysisType:     "margin computation and year-over-year growth",
		BusinessContext:  "a Saudi company; zakat applies below the net income line rather than corporate income tax",
		DataRequirements: "revenue, cost of goods sold, operating income, depreciation, and net income for both periods",
		OpenQuestions:    "whether margins expanded or compressed and which line drove the change",
		OutputFormat:     "margins with thresholds first, then growth rates",
	}
}

type marginRow struct {
	name       string
	cur, prior *float64
	threshold  float64
}

func (a *profitabilityAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	stmt := statementOf(exec)
	f := extractFigures(stmt)
	ebitda := f.ebitda()

	rows := make([]marginRow, 0, 4)
	addMarginRow := func(name string, num figure, threshold float64) {
		cur, prior := pairMargin(num, f.Revenue)
		rows = append(rows, marginRow{name: name, cur: cur, prior: prior, threshold: threshold})
	}
	addMarginRow("gross", f.GrossProfit, grossMarginThreshold)
	addMarginRow("operating", f.OperatingIncome, operatingMarginThreshold)
	addMarginRow("ebitda", ebitda, ebitdaMarginThreshold)
	addMarginRow("net", f.NetIncome, netMarginThreshold)

	margins := make(map[string]interface{}, len(rows))
	health := 0
	for _, r := range rows {
		meets := r.cur != nil && *r.cur >= r.threshold
		if meets {
			health++
		}
		margins[r.name] = map[string]interface{}{
			"current":         deref(r.cur),
			"prior":           deref(r.prior),
			"threshold":       r.threshold,
			"meets_threshold": meets,
		}
	}

	growthOf := func(fig figure) interface{} {
		if !fig.ok {
			return nil
		}
		return deref(fig.ChangePct)
	}
	growth := map[string]interface{}{
		"revenue":          growthOf(f.Revenue),
		"gross_profit":     growthOf(f.GrossProfit),
		"operating_income": growthOf(f.OperatingIncome),
		"net_income":       growthOf(f.NetIncome),
	}

	analysis := map[string]interface{}{
		"company":       stmt.CompanyInfo.Name,
		"period":        stmt.Periods.Current,
		"margins":       margins,
		"growth":        growth,
		"margin_health": health,
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"margin_health":    health,
			"margins_computed": computedCount(rows),
		},
		Sources: figureSources(stmt, f.Revenue, f.GrossProfit, f.OperatingIncome,
			f.NetIncome, f.Depreciation),
		Summary: a.summarize(stmt, rows, health, f),
	}, nil
}

func computedCount(rows []marginRow) int {
	n := 0
	for _, r := range rows {
		if r.cur != nil {
			n++
		}
	}
	return n
}

func (a *profitabilityAnalyzer) summarize(stmt *finance.Statement, rows []marginRow, health int, f *statementFigures) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profitability for %s\n", statementHeader(stmt))
	fmt.Fprintf(&b, "Margin health: %d of 4 thresholds met\n", health)
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s margin: %s (prior %s, threshold %.0f%%)\n",
			r.name, fmtOptional(r.cur, "%"), fmtOptional(r.prior, "%"), r.threshold)
	}
	if f.Revenue.ok {
		fmt.Fprintf(&b, "Revenue: %s SAR current, %s SAR prior (%s change)\n",
			protocol.FormatAmount(f.Revenue.Current),
			protocol.FormatAmount(f.Revenue.Prior),
			fmtOptional(f.Revenue.ChangePct, "%"))
	}
	return b.String()
}

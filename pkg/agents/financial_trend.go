package agents

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// financialTrendAnalyzer reads the period-over-period movement across
// the whole statement. CAGR needs at least three periods and a parsed
// statement carries two, so it reports null until multi-period uploads
// exist.
type financialTrendAnalyzer struct{}

func (a *financialTrendAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryFinancialTrend
}

func (a *financialTrendAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "current reporting period against the prior one",
		Categories:       "growth rates of the headline items and the biggest line-item movers",
		AnalysisType:     "period-over-period growth with seasonal context",
		BusinessContext:  "a Saudi company; Ramadan and zakat timing shift quarterly comparisons",
		DataRequirements: "current and prior values across all three statements",
		OpenQuestions:    "which items moved most and whether the headline growth is broad or concentrated",
		OutputFormat:     "headline growth first, then the biggest movers",
	}
}

func (a *financialTrendAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	stmt := statementOf(exec)
	f := extractFigures(stmt)

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
		"total_assets":     growthOf(f.TotalAssets),
		"equity":           growthOf(f.Equity),
	}

	movers := biggestMovers(stmt, maxSources)
	granularity := periodGranularity(stmt.Periods)
	tags := seasonalTags(stmt.Periods)

	analysis := map[string]interface{}{
		"company":           stmt.CompanyInfo.Name,
		"period":            stmt.Periods.Current,
		"granularity":       granularity,
		"growth":            growth,
		"biggest_movers":    movers,
		"cagr":              nil,
		"periods_available": 2,
		"seasonal_tags":     tags,
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"movers_ranked": len(movers),
			"granularity":   granularity,
		},
		Sources: figureSources(stmt, f.Revenue, f.NetIncome, f.TotalAssets, f.Equity),
		Summary: a.summarize(stmt, granularity, growth, movers),
	}, nil
}

func (a *financialTrendAnalyzer) summarize(stmt *finance.Statement, granularity string, growth map[string]interface{}, movers []interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Financial trend for %s (%s comparison)\n", statementHeader(stmt), granularity)
	for _, name := range []string{"revenue", "gross_profit", "operating_income", "net_income", "total_assets", "equity"} {
		if v, ok := growth[name].(float64); ok {
			fmt.Fprintf(&b, "- %s growth: %s%%\n", name, protocol.FormatAmount(v))
		}
	}
	if len(movers) > 0 {
		b.WriteString("Biggest movers:\n")
		for _, m := range movers {
			entry := m.(map[string]interface{})
			fmt.Fprintf(&b, "- %s (%s): %s%% change\n",
				entry["item"], entry["kind"],
				protocol.FormatAmount(entry["change_percentage"].(float64)))
		}
	}
	return b.String()
}

// biggestMovers ranks line items by absolute percentage change.
func biggestMovers(stmt *finance.Statement, n int) []interface{} {
	items := stmt.Flatten()
	moved := make([]finance.LineItem, 0, len(items))
	for _, item := range items {
		if item.ChangePct != nil && item.Kind != finance.KindRatio {
			moved = append(moved, item)
		}
	}
	sort.SliceStable(moved, func(i, j int) bool {
		return math.Abs(*moved[i].ChangePct) > math.Abs(*moved[j].ChangePct)
	})
	if len(moved) > n {
		moved = moved[:n]
	}

	movers := make([]interface{}, len(moved))
	for i, item := range moved {
		movers[i] = map[string]interface{}{
			"item":              item.Item,
			"kind":              string(item.Kind),
			"section":           item.Section,
			"current":           protocol.Round2(item.Current),
			"prior":             protocol.Round2(item.Prior),
			"change_percentage": *item.ChangePct,
		}
	}
	return movers
}

// periodGranularity guesses the comparison cadence from the period
// labels; quarterly labels carry a Q marker.
func periodGranularity(p finance.Periods) string {
	label := strings.ToLower(p.Current + " " + p.Prior)
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		if strings.Contains(label, q) {
			return "quarterly"
		}
	}
	return "yearly"
}

// seasonalTags pulls calendar markers out of the period labels.
func seasonalTags(p finance.Periods) []string {
	label := strings.ToLower(p.Current + " " + p.Prior)
	tags := make([]string, 0, 2)
	for _, marker := range []string{"q1", "q2", "q3", "q4", "ramadan", "hajj"} {
		if strings.Contains(label, marker) {
			tags = append(tags, marker)
		}
	}
	return tags
}

package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// ratioAnalyzer computes the standard ratio set from the statement's
// line items. A zero denominator yields null, never infinity.
type ratioAnalyzer struct{}

func (a *ratioAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryRatio
}

func (a *ratioAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "current reporting period against the prior one",
		Categories:       "liquidity, leverage, return, and activity ratios",
		AnalysisType:     "ratio computation from balance sheet and income statement line items",
		BusinessContext:  "a Saudi company reporting under SOCPA/IFRS; zakat rather than income tax applies",
		DataRequirements: "current and prior values for assets, liabilities, equity, revenue, and income items",
		OpenQuestions:    "which ratios moved materially year over year and whether leverage stays serviceable",
		OutputFormat:     "each ratio with current, prior, and change, flagging the notable ones",
	}
}

// ratioRow keeps summary iteration in a fixed order.
type ratioRow struct {
	name       string
	cur, prior *float64
}

func (a *ratioAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	stmt := statementOf(exec)
	f := extractFigures(stmt)

	quickAssets := figure{}
	if f.CurrentAssets.ok {
		cur, prior := f.CurrentAssets.Current, f.CurrentAssets.Prior
		if f.Inventory.ok {
			cur -= f.Inventory.Current
			prior -= f.Inventory.Prior
		}
		quickAssets = derivedFigure("quick assets", finance.KindBalanceSheet, cur, prior)
	}

	rows := make([]ratioRow, 0, 8)
	addRatio := func(name string, num, den figure) {
		cur, prior := pairRatio(num, den)
		rows = append(rows, ratioRow{name: name, cur: cur, prior: prior})
	}
	addMargin := func(name string, num, den figure) {
		cur, prior := pairMargin(num, den)
		rows = append(rows, ratioRow{name: name, cur: cur, prior: prior})
	}
	addRatio("current_ratio", f.CurrentAssets, f.CurrentLiabilities)
	addRatio("quick_ratio", quickAssets, f.CurrentLiabilities)
	addRatio("cash_ratio", f.Cash, f.CurrentLiabilities)
	addRatio("debt_to_equity", f.TotalLiabilities, f.Equity)
	addMargin("return_on_assets", f.NetIncome, f.TotalAssets)
	addMargin("return_on_equity", f.NetIncome, f.Equity)
	addRatio("interest_coverage", f.OperatingIncome, f.InterestExpense)
	addRatio("asset_turnover", f.Revenue, f.TotalAssets)

	ratios := make(map[string]interface{}, len(rows))
	computed := 0
	for _, r := range rows {
		ratios[r.name] = ratioEntry(r.cur, r.prior)
		if r.cur != nil {
			computed++
		}
	}

	analysis := map[string]interface{}{
		"company": stmt.CompanyInfo.Name,
		"period":  stmt.Periods.Current,
		"ratios":  ratios,
	}
	if len(stmt.Ratios) > 0 {
		reported := make(map[string]interface{}, len(stmt.Ratios))
		for name, pair := range stmt.Ratios {
			reported[name] = map[string]interface{}{
				"current":           pair.Current,
				"prior":             pair.Prior,
				"change_percentage": deref(finance.PercentChange(pair.Current, pair.Prior)),
			}
		}
		analysis["reported_ratios"] = reported
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"ratios_computed": computed,
			"ratios_reported": len(stmt.Ratios),
		},
		Sources: figureSources(stmt, f.CurrentAssets, f.CurrentLiabilities,
			f.TotalLiabilities, f.Equity, f.NetIncome, f.TotalAssets, f.Revenue),
		Summary: a.summarize(stmt, rows),
	}, nil
}

func (a *ratioAnalyzer) summarize(stmt *finance.Statement, rows []ratioRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ratios for %s\n", statementHeader(stmt))
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: %s (prior %s)\n", r.name, fmtOptional(r.cur, ""), fmtOptional(r.prior, ""))
	}
	return b.String()
}

package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// riskAnalyzer scores financial risk from 1 to 10 with additive rules
// over leverage, coverage, liquidity, and earnings direction.
type riskAnalyzer struct{}

func (a *riskAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryRisk
}

func (a *riskAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "current reporting period against the prior one",
		Categories:       "leverage, interest coverage, liquidity, earnings direction, and zakat compliance",
		AnalysisType:     "additive risk scoring with early-warning indicators",
		BusinessContext:  "a Saudi company; zakat provisioning and SAMA-regulated bank facilities shape the compliance picture",
		DataRequirements: "liabilities, equity, operating income, interest expense, revenue, and cash flow for both periods",
		OpenQuestions:    "whether leverage is serviceable from operating earnings and which indicators are deteriorating",
		OutputFormat:     "the risk score and level first, then the triggered factors and the compliance checklist",
	}
}

func (a *riskAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	stmt := statementOf(exec)
	f := extractFigures(stmt)

	debtToEquity, dePrior := pairRatio(f.TotalLiabilities, f.Equity)
	coverage, covPrior := pairRatio(f.OperatingIncome, f.InterestExpense)
	currentRatio, _ := pairRatio(f.CurrentAssets, f.CurrentLiabilities)
	netMargin, _ := pairMargin(f.NetIncome, f.Revenue)
	wc := f.workingCapital()

	score := 1.0
	factors := make([]interface{}, 0)
	warnings := make([]string, 0)
	addFactor := func(points float64, factor string) {
		score += points
		factors = append(factors, map[string]interface{}{"factor": factor, "points": points})
		warnings = append(warnings, factor)
	}

	switch {
	case debtToEquity != nil && *debtToEquity > 2:
		addFactor(2, "debt to equity above 2")
	case debtToEquity != nil && *debtToEquity > 1:
		addFactor(1, "debt to equity above 1")
	}
	switch {
	case coverage != nil && *coverage < 1.5:
		addFactor(2, "interest coverage below 1.5")
	case coverage != nil && *coverage < 3:
		addFactor(1, "interest coverage below 3")
	}
	if currentRatio != nil && *currentRatio < 1 {
		addFactor(1, "current ratio below 1")
	}
	if netMargin != nil && *netMargin < 0 {
		addFactor(1, "net loss in the current period")
	}
	if f.Revenue.ok && f.Revenue.ChangePct != nil && *f.Revenue.ChangePct < 0 {
		addFactor(1, "revenue declining period over period")
	}
	if f.OperatingCashFlow.ok && f.OperatingCashFlow.Current < 0 {
		addFactor(1, "negative operating cash flow")
	}
	if wc.ok && wc.Current < 0 {
		addFactor(1, "negative working capital")
	}

	score = clipScore(score, 1, 10)
	level := riskLevel(score)

	boolOrNil := func(known, value bool) interface{} {
		if !known {
			return nil
		}
		return value
	}
	compliance := map[string]interface{}{
		"zakat_provision_present":        f.Zakat.ok,
		"positive_equity":                boolOrNil(f.Equity.ok, f.Equity.Current > 0),
		"interest_coverage_adequate":     boolOrNil(coverage != nil, coverage != nil && *coverage >= 3),
		"short_term_obligations_covered": boolOrNil(currentRatio != nil, currentRatio != nil && *currentRatio >= 1),
	}

	analysis := map[string]interface{}{
		"company":    stmt.CompanyInfo.Name,
		"period":     stmt.Periods.Current,
		"risk_score": score,
		"risk_level": level,
		"leverage": map[string]interface{}{
			"debt_to_equity":    ratioEntry(debtToEquity, dePrior),
			"interest_coverage": ratioEntry(coverage, covPrior),
		},
		"factors":        factors,
		"early_warnings": warnings,
		"compliance":     compliance,
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"risk_score":   score,
			"factor_count": len(factors),
		},
		Sources: figureSources(stmt, f.TotalLiabilities, f.Equity,
			f.OperatingIncome, f.InterestExpense, f.Revenue),
		Summary: a.summarize(stmt, score, level, warnings, debtToEquity, coverage),
	}, nil
}

func (a *riskAnalyzer) summarize(stmt *finance.Statement, score float64, level string, warnings []string, debtToEquity, coverage *float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk assessment for %s\n", statementHeader(stmt))
	fmt.Fprintf(&b, "Risk score: %.0f of 10 (%s)\n", score, level)
	fmt.Fprintf(&b, "Debt to equity: %s, interest coverage: %s\n",
		fmtOptional(debtToEquity, ""), fmtOptional(coverage, ""))
	if len(warnings) > 0 {
		b.WriteString("Early warnings:\n")
		for _, w := range warnings {
			b.WriteString("- " + w + "\n")
		}
	} else {
		b.WriteString("Early warnings: none triggered\n")
	}
	return b.String()
}

// riskLevel names the score band.
func riskLevel(score float64) string {
	switch {
	case score <= 3:
		return "low"
	case score <= 6:
		return "moderate"
	case score <= 8:
		return "high"
	default:
		return "critical"
	}
}

package agents

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// liquidityAnalyzer measures short-term solvency: working capital, the
// liquidity ratios, and the cash conversion cycle.
type liquidityAnalyzer struct{}

func (a *liquidityAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryLiquidity
}

func (a *liquidityAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "current reporting period against the prior one",
		Categories:       "working capital, liquidity ratios, and the cash conversion cycle",
		AnalysisType:     "short-term solvency assessment with a status grade",
		BusinessContext:  "a Saudi company; late receivables are common in B2B trade, so the conversion cycle matters as much as the ratio",
		DataRequirements: "current assets and liabilities, inventory, cash, receivables, payables, revenue, and cost of goods sold",
		OpenQuestions:    "whether the company covers its short-term obligations and where cash sits idle in the cycle",
		OutputFormat:     "the status grade first, then working capital, ratios, and cycle days",
	}
}

func (a *liquidityAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	stmt := statementOf(exec)
	f := extractFigures(stmt)
	wc := f.workingCapital()

	quickAssets := figure{}
	if f.CurrentAssets.ok {
		cur, prior := f.CurrentAssets.Current, f.CurrentAssets.Prior
		if f.Inventory.ok {
			cur -= f.Inventory.Current
			prior -= f.Inventory.Prior
		}
		quickAssets = derivedFigure("quick assets", finance.KindBalanceSheet, cur, prior)
	}

	currentCur, currentPrior := pairRatio(f.CurrentAssets, f.CurrentLiabilities)
	quickCur, quickPrior := pairRatio(quickAssets, f.CurrentLiabilities)
	cashCur, cashPrior := pairRatio(f.Cash, f.CurrentLiabilities)

	dio := daysOf(f.Inventory, f.COGS)
	dso := daysOf(f.Receivables, f.Revenue)
	dpo := daysOf(f.Payables, f.COGS)
	var ccc interface{}
	if dio != nil && dso != nil && dpo != nil {
		ccc = protocol.Round2(*dio + *dso - *dpo)
	}

	status := liquidityStatus(currentCur)

	wcEntry := map[string]interface{}{
		"current":           nil,
		"prior":             nil,
		"change_percentage": nil,
	}
	if wc.ok {
		wcEntry["current"] = protocol.Round2(wc.Current)
		wcEntry["prior"] = protocol.Round2(wc.Prior)
		wcEntry["change_percentage"] = deref(wc.ChangePct)
	}

	analysis := map[string]interface{}{
		"company":         stmt.CompanyInfo.Name,
		"period":          stmt.Periods.Current,
		"status":          status,
		"working_capital": wcEntry,
		"current_ratio":   ratioEntry(currentCur, currentPrior),
		"quick_ratio":     ratioEntry(quickCur, quickPrior),
		"cash_ratio":      ratioEntry(cashCur, cashPrior),
		"cash_conversion_cycle": map[string]interface{}{
			"dio": deref(dio),
			"dso": deref(dso),
			"dpo": deref(dpo),
			"ccc": ccc,
		},
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"status":       status,
			"ccc_computed": ccc != nil,
		},
		Sources: figureSources(stmt, f.CurrentAssets, f.CurrentLiabilities,
			f.Cash, f.Inventory, f.Receivables, f.Payables),
		Summary: a.summarize(stmt, status, wc, currentCur, quickCur, cashCur, dio, dso, dpo, ccc),
	}, nil
}

func (a *liquidityAnalyzer) summarize(stmt *finance.Statement, status string, wc figure, current, quick, cash, dio, dso, dpo *float64, ccc interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Liquidity for %s\n", statementHeader(stmt))
	fmt.Fprintf(&b, "Status: %s\n", status)
	if wc.ok {
		fmt.Fprintf(&b, "Working capital: %s SAR (prior %s SAR)\n",
			protocol.FormatAmount(wc.Current), protocol.FormatAmount(wc.Prior))
	}
	fmt.Fprintf(&b, "Current ratio: %s, quick: %s, cash: %s\n",
		fmtOptional(current, ""), fmtOptional(quick, ""), fmtOptional(cash, ""))
	fmt.Fprintf(&b, "DIO: %s, DSO: %s, DPO: %s days\n",
		fmtOptional(dio, ""), fmtOptional(dso, ""), fmtOptional(dpo, ""))
	if v, ok := ccc.(float64); ok {
		fmt.Fprintf(&b, "Cash conversion cycle: %s days\n", protocol.FormatAmount(v))
	} else {
		b.WriteString("Cash conversion cycle: not computable from the statement\n")
	}
	return b.String()
}

// liquidityStatus grades the current ratio. Two or better is
// excellent, down through poor below one.
func liquidityStatus(currentRatio *float64) string {
	switch {
	case currentRatio == nil:
		return "unknown"
	case *currentRatio >= 2:
		return "excellent"
	case *currentRatio >= 1.5:
		return "good"
	case *currentRatio >= 1:
		return "fair"
	default:
		return "poor"
	}
}

package agents

import (
	"fmt"
	"math"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Working-capital day targets for a trading business.
const (
	dsoTarget = 45.0
	dioTarget = 60.0
	dpoTarget = 30.0
)

// efficiencyAnalyzer measures how hard assets work: turnover ratios,
// working-capital days against targets, and the bottleneck component.
type efficiencyAnalyzer struct{}

func (a *efficiencyAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryEfficiency
}

func (a *efficiencyAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "current reporting period against the prior one",
		Categories:       "asset, inventory, receivables, and payables turnover plus DSO, DIO, and DPO",
		AnalysisType:     "operating efficiency scoring against working-capital day targets",
		BusinessContext:  "a Saudi trading business; collection terms of 45 days and inventory turns around 60 days are the working norm",
		DataRequirements: "revenue, cost of goods sold, and the working-capital balances for both periods",
		OpenQuestions:    "which part of the working-capital cycle is the bottleneck and how far it sits from target",
		OutputFormat:     "the efficiency score and bottleneck first, then turnovers and day metrics",
	}
}

// dayComponent is one working-capital day metric against its target.
type dayComponent struct {
	name   string
	actual *float64
	target float64
}

func (a *efficiencyAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	stmt := statementOf(exec)
	f := extractFigures(stmt)

	assetCur, assetPrior := pairRatio(f.Revenue, f.TotalAssets)
	invCur, invPrior := pairRatio(f.COGS, f.Inventory)
	recvCur, recvPrior := pairRatio(f.Revenue, f.Receivables)
	payCur, payPrior := pairRatio(f.COGS, f.Payables)

	comps := []dayComponent{
		{name: "dso", actual: daysOf(f.Receivables, f.Revenue), target: dsoTarget},
		{name: "dio", actual: daysOf(f.Inventory, f.COGS), target: dioTarget},
		{name: "dpo", actual: daysOf(f.Payables, f.COGS), target: dpoTarget},
	}

	days := make(map[string]interface{}, len(comps))
	var totalPenalty, worst float64
	available := 0
	bottleneck := ""
	worst = -1
	for _, c := range comps {
		entry := map[string]interface{}{
			"actual": deref(c.actual),
			"target": c.target,
		}
		if c.actual != nil {
			dev := (*c.actual - c.target) / c.target
			entry["deviation_percentage"] = protocol.Round2(dev * 100)
			totalPenalty += math.Min(1, math.Abs(dev))
			available++
			if math.Abs(dev) > worst {
				worst = math.Abs(dev)
				bottleneck = c.name
			}
		} else {
			entry["deviation_percentage"] = nil
		}
		days[c.name] = entry
	}

	var scoreValue, bottleneckValue interface{}
	if available > 0 {
		scoreValue = protocol.Round2(100 * (1 - totalPenalty/float64(available)))
		bottleneckValue = bottleneck
	}

	analysis := map[string]interface{}{
		"company": stmt.CompanyInfo.Name,
		"period":  stmt.Periods.Current,
		"turnover": map[string]interface{}{
			"asset":       ratioEntry(assetCur, assetPrior),
			"inventory":   ratioEntry(invCur, invPrior),
			"receivables": ratioEntry(recvCur, recvPrior),
			"payables":    ratioEntry(payCur, payPrior),
		},
		"working_capital_days": days,
		"efficiency_score":     scoreValue,
		"bottleneck":           bottleneckValue,
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"components_measured": available,
			"bottleneck":          bottleneck,
		},
		Sources: figureSources(stmt, f.Revenue, f.COGS, f.TotalAssets,
			f.Inventory, f.Receivables, f.Payables),
		Summary: a.summarize(stmt, scoreValue, bottleneckValue, comps),
	}, nil
}

func (a *efficiencyAnalyzer) summarize(stmt *finance.Statement, score, bottleneck interface{}, comps []dayComponent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Efficiency for %s\n", statementHeader(stmt))
	if v, ok := score.(float64); ok {
		fmt.Fprintf(&b, "Efficiency score: %s of 100\n", protocol.FormatAmount(v))
	} else {
		b.WriteString("Efficiency score: not computable from the statement\n")
	}
	if name, ok := bottleneck.(string); ok {
		fmt.Fprintf(&b, "Bottleneck: %s\n", name)
	}
	for _, c := range comps {
		fmt.Fprintf(&b, "- %s: %s days (target %.0f)\n", c.name, fmtOptional(c.actual, ""), c.target)
	}
	return b.String()
}

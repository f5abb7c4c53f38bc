package agents

import (
	"fmt"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
	"github.com/mizanhq/mizan/pkg/store"
)

// statementOf never returns nil so reductions stay total even when no
// statement was retrieved.
func statementOf(exec *Execution) *finance.Statement {
	if exec.Statement == nil {
		return &finance.Statement{}
	}
	return exec.Statement
}

// figure is one looked-up statement line, absent when no candidate
// name matched.
type figure struct {
	finance.LineItem
	ok bool
}

// statementFigures resolves the line items the financial agents
// compute from, each through its candidate name set.
type statementFigures struct {
	Revenue            figure
	COGS               figure
	GrossProfit        figure
	OperatingIncome    figure
	NetIncome          figure
	Depreciation       figure
	InterestExpense    figure
	TotalAssets        figure
	TotalLiabilities   figure
	Equity             figure
	CurrentAssets      figure
	CurrentLiabilities figure
	Inventory          figure
	Cash               figure
	Receivables        figure
	Payables           figure
	Zakat              figure
	OperatingCashFlow  figure
}

func extractFigures(stmt *finance.Statement) *statementFigures {
	look := func(kind finance.StatementKind, candidates []string) figure {
		item, ok := stmt.FindLine(kind, candidates...)
		return figure{LineItem: item, ok: ok}
	}
	f := &statementFigures{
		Revenue:            look(finance.KindIncomeStatement, finance.ItemRevenue),
		COGS:               look(finance.KindIncomeStatement, finance.ItemCOGS),
		GrossProfit:        look(finance.KindIncomeStatement, finance.ItemGrossProfit),
		OperatingIncome:    look(finance.KindIncomeStatement, finance.ItemOperatingIncome),
		NetIncome:          look(finance.KindIncomeStatement, finance.ItemNetIncome),
		Depreciation:       look(finance.KindIncomeStatement, finance.ItemDepreciation),
		InterestExpense:    look(finance.KindIncomeStatement, finance.ItemInterestExpense),
		TotalAssets:        look(finance.KindBalanceSheet, finance.ItemTotalAssets),
		TotalLiabilities:   look(finance.KindBalanceSheet, finance.ItemTotalLiabilities),
		Equity:             look(finance.KindBalanceSheet, finance.ItemEquity),
		CurrentAssets:      look(finance.KindBalanceSheet, finance.ItemCurrentAssets),
		CurrentLiabilities: look(finance.KindBalanceSheet, finance.ItemCurrentLiabilities),
		Inventory:          look(finance.KindBalanceSheet, finance.ItemInventory),
		Cash:               look(finance.KindBalanceSheet, finance.ItemCash),
		Receivables:        look(finance.KindBalanceSheet, finance.ItemReceivables),
		Payables:           look(finance.KindBalanceSheet, finance.ItemPayables),
		Zakat:              look(finance.KindBalanceSheet, finance.ItemZakat),
		OperatingCashFlow:  look(finance.KindCashFlow, finance.ItemOperatingCashFlow),
	}
	if !f.GrossProfit.ok && f.Revenue.ok && f.COGS.ok {
		f.GrossProfit = derivedFigure("gross profit", finance.KindIncomeStatement,
			f.Revenue.Current-f.COGS.Current, f.Revenue.Prior-f.COGS.Prior)
	}
	return f
}

func derivedFigure(name string, kind finance.StatementKind, current, prior float64) figure {
	return figure{
		LineItem: finance.LineItem{
			Item:      name,
			Current:   current,
			Prior:     prior,
			Kind:      kind,
			Section:   "derived",
			ChangePct: finance.PercentChange(current, prior),
		},
		ok: true,
	}
}

// ebitda approximates operating income plus depreciation and
// amortization, falling back to operating income alone.
func (f *statementFigures) ebitda() figure {
	if !f.OperatingIncome.ok {
		return figure{}
	}
	cur, prior := f.OperatingIncome.Current, f.OperatingIncome.Prior
	if f.Depreciation.ok {
		cur += f.Depreciation.Current
		prior += f.Depreciation.Prior
	}
	return derivedFigure("ebitda", finance.KindIncomeStatement, cur, prior)
}

func (f *statementFigures) workingCapital() figure {
	if !f.CurrentAssets.ok || !f.CurrentLiabilities.ok {
		return figure{}
	}
	return derivedFigure("working capital", finance.KindBalanceSheet,
		f.CurrentAssets.Current-f.CurrentLiabilities.Current,
		f.CurrentAssets.Prior-f.CurrentLiabilities.Prior)
}

// pairRatio divides current and prior sides, nil on zero denominators
// or missing figures.
func pairRatio(num, den figure) (cur, prior *float64) {
	if !num.ok || !den.ok {
		return nil, nil
	}
	return safeDiv(num.Current, den.Current), safeDiv(num.Prior, den.Prior)
}

// pairMargin is pairRatio scaled to percent.
func pairMargin(num, den figure) (cur, prior *float64) {
	if !num.ok || !den.ok {
		return nil, nil
	}
	return safePct(num.Current, den.Current), safePct(num.Prior, den.Prior)
}

// ratioEntry renders a (current, prior) metric with its change.
func ratioEntry(cur, prior *float64) map[string]interface{} {
	var change interface{}
	if cur != nil && prior != nil {
		change = deref(finance.PercentChange(*cur, *prior))
	}
	return map[string]interface{}{
		"current":           deref(cur),
		"prior":             deref(prior),
		"change_percentage": change,
	}
}

// daysOf converts a balance into days of its flow base on the current
// period, 365-day convention.
func daysOf(balance, flow figure) *float64 {
	if !balance.ok || !flow.ok {
		return nil
	}
	return safeDiv(365*balance.Current, flow.Current)
}

// figureSources renders resolved figures as retrieval-style sources,
// capped like every agent's source list.
func figureSources(stmt *finance.Statement, figs ...figure) []protocol.Source {
	sources := make([]protocol.Source, 0, maxSources)
	seen := make(map[string]bool)
	for _, f := range figs {
		if !f.ok {
			continue
		}
		if len(sources) == maxSources {
			break
		}
		id := fmt.Sprintf("%s/%s/%s", f.Kind, f.Section, f.Item)
		if seen[id] {
			continue
		}
		seen[id] = true
		sources = append(sources, protocol.Source{
			ID:      id,
			Content: store.RenderLineItem(stmt.CompanyInfo.Name, stmt.Periods.Current, f.LineItem),
		})
	}
	return sources
}

// statementHeader names the company and the compared periods.
func statementHeader(stmt *finance.Statement) string {
	return fmt.Sprintf("%s, %s vs %s", stmt.CompanyInfo.Name, stmt.Periods.Current, stmt.Periods.Prior)
}

// fmtOptional renders an optional metric for summaries.
func fmtOptional(v *float64, suffix string) string {
	if v == nil {
		return "n/a"
	}
	return protocol.FormatAmount(*v) + suffix
}

package finance

import (
	"sort"
	"strings"

	"github.com/mizanhq/mizan/pkg/protocol"
)

// StatementKind tags which statement a line item belongs to.
type StatementKind string

const (
	KindBalanceSheet    StatementKind = "balance_sheet"
	KindIncomeStatement StatementKind = "income_statement"
	KindCashFlow        StatementKind = "cash_flow"
	KindRatio           StatementKind = "ratio"
)

// ValuePair is a (current, prior) value for one line item.
type ValuePair struct {
	Current float64 `json:"current"`
	Prior   float64 `json:"prior"`
}

// CompanyInfo identifies the reporting entity.
type CompanyInfo struct {
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}

// Periods labels the two reporting periods, e.g. "2024" and "2023".
type Periods struct {
	Current string `json:"current"`
	Prior   string `json:"prior"`
}

// Statement is a parsed corporate financial statement. The three
// statements group items under named sections; ratios are flat.
type Statement struct {
	CompanyInfo     CompanyInfo                     `json:"company_info"`
	Periods         Periods                         `json:"periods"`
	BalanceSheet    map[string]map[string]ValuePair `json:"balance_sheet,omitempty"`
	IncomeStatement map[string]map[string]ValuePair `json:"income_statement,omitempty"`
	CashFlow        map[string]map[string]ValuePair `json:"cash_flow,omitempty"`
	Ratios          map[string]ValuePair            `json:"ratios,omitempty"`
}

// LineItem is one flattened statement entry with its precomputed change.
type LineItem struct {
	Item      string
	Current   float64
	Prior     float64
	Kind      StatementKind
	Section   string
	ChangePct *float64
}

// PercentChange computes (current-prior)/|prior|·100, nil when prior is
// zero so serialization yields null rather than infinity.
func PercentChange(current, prior float64) *float64 {
	if prior == 0 {
		return nil
	}
	pct := (current - prior) / abs(prior) * 100
	return protocol.Finite(protocol.Round2(pct))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Flatten emits every line item including ratios in a deterministic
// order: statement kind, then section, then item name.
func (s *Statement) Flatten() []LineItem {
	var items []LineItem
	items = append(items, flattenSections(s.BalanceSheet, KindBalanceSheet)...)
	items = append(items, flattenSections(s.IncomeStatement, KindIncomeStatement)...)
	items = append(items, flattenSections(s.CashFlow, KindCashFlow)...)

	ratioNames := make([]string, 0, len(s.Ratios))
	for name := range s.Ratios {
		ratioNames = append(ratioNames, name)
	}
	sort.Strings(ratioNames)
	for _, name := range ratioNames {
		pair := s.Ratios[name]
		items = append(items, LineItem{
			Item:      name,
			Current:   pair.Current,
			Prior:     pair.Prior,
			Kind:      KindRatio,
			Section:   "ratios",
			ChangePct: PercentChange(pair.Current, pair.Prior),
		})
	}
	return items
}

func flattenSections(sections map[string]map[string]ValuePair, kind StatementKind) []LineItem {
	sectionNames := make([]string, 0, len(sections))
	for name := range sections {
		sectionNames = append(sectionNames, name)
	}
	sort.Strings(sectionNames)

	var items []LineItem
	for _, section := range sectionNames {
		itemNames := make([]string, 0, len(sections[section]))
		for name := range sections[section] {
			itemNames = append(itemNames, name)
		}
		sort.Strings(itemNames)
		for _, item := range itemNames {
			pair := sections[section][item]
			items = append(items, LineItem{
				Item:      item,
				Current:   pair.Current,
				Prior:     pair.Prior,
				Kind:      kind,
				Section:   section,
				ChangePct: PercentChange(pair.Current, pair.Prior),
			})
		}
	}
	return items
}

// normalizeItemKey folds case, spaces, and separators so "Total Current
// Assets" and "total_current_assets" compare equal.
func normalizeItemKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Find looks an item up by any of the candidate names across every
// section of the given statement kind. Candidates are tried in order.
func (s *Statement) Find(kind StatementKind, candidates ...string) (ValuePair, bool) {
	item, ok := s.FindLine(kind, candidates...)
	return ValuePair{Current: item.Current, Prior: item.Prior}, ok
}

// FindLine is Find keeping the full line item, section included.
func (s *Statement) FindLine(kind StatementKind, candidates ...string) (LineItem, bool) {
	var sections map[string]map[string]ValuePair
	switch kind {
	case KindBalanceSheet:
		sections = s.BalanceSheet
	case KindIncomeStatement:
		sections = s.IncomeStatement
	case KindCashFlow:
		sections = s.CashFlow
	case KindRatio:
		ratioNames := make([]string, 0, len(s.Ratios))
		for name := range s.Ratios {
			ratioNames = append(ratioNames, name)
		}
		sort.Strings(ratioNames)
		for _, want := range candidates {
			for _, name := range ratioNames {
				if normalizeItemKey(name) == normalizeItemKey(want) {
					pair := s.Ratios[name]
					return LineItem{
						Item:      name,
						Current:   pair.Current,
						Prior:     pair.Prior,
						Kind:      KindRatio,
						Section:   "ratios",
						ChangePct: PercentChange(pair.Current, pair.Prior),
					}, true
				}
			}
		}
		return LineItem{}, false
	}

	sectionNames := make([]string, 0, len(sections))
	for name := range sections {
		sectionNames = append(sectionNames, name)
	}
	sort.Strings(sectionNames)

	for _, want := range candidates {
		key := normalizeItemKey(want)
		for _, section := range sectionNames {
			itemNames := make([]string, 0, len(sections[section]))
			for name := range sections[section] {
				itemNames = append(itemNames, name)
			}
			sort.Strings(itemNames)
			for _, name := range itemNames {
				if normalizeItemKey(name) == key {
					pair := sections[section][name]
					return LineItem{
						Item:      name,
						Current:   pair.Current,
						Prior:     pair.Prior,
						Kind:      kind,
						Section:   section,
						ChangePct: PercentChange(pair.Current, pair.Prior),
					}, true
				}
			}
		}
	}
	return LineItem{}, false
}

// Empty reports whether the statement carries no line items at all.
func (s *Statement) Empty() bool {
	return len(s.BalanceSheet) == 0 && len(s.IncomeStatement) == 0 &&
		len(s.CashFlow) == 0 && len(s.Ratios) == 0
}

package agents

import (
	"sort"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
	"github.com/mizanhq/mizan/pkg/store"
)

// categoryRank is one taxonomy bucket with its rolled-up figures,
// ordered largest first.
type categoryRank struct {
	name  string
	total float64
	count int
}

// categorize rolls transactions up by category. It returns the JSON
// shape keyed by category name and the same buckets ranked by total
// descending, name ascending on ties.
func categorize(txs []finance.Transaction) (map[string]interface{}, []categoryRank) {
	type bucket struct {
		total float64
		count int
	}
	total := finance.SumAbs(txs)
	buckets := make(map[string]*bucket)
	for _, tx := range txs {
		cat := effectiveCategory(tx)
		b, ok := buckets[cat]
		if !ok {
			b = &bucket{}
			buckets[cat] = b
		}
		b.total += tx.Abs()
		b.count++
	}

	categories := make(map[string]interface{}, len(buckets))
	order := make([]categoryRank, 0, len(buckets))
	for name, b := range buckets {
		catTotal := protocol.Round2(b.total)
		entry := map[string]interface{}{
			"total": catTotal,
			"count": b.count,
		}
		if pct := safePct(catTotal, total); pct != nil {
			entry["percentage"] = *pct
		}
		categories[name] = entry
		order = append(order, categoryRank{name: name, total: catTotal, count: b.count})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].total != order[j].total {
			return order[i].total > order[j].total
		}
		return order[i].name < order[j].name
	})
	return categories, order
}

// effectiveCategory prefers the category stamped at ingest.
func effectiveCategory(tx finance.Transaction) string {
	if tx.Category != "" {
		return tx.Category
	}
	return finance.CategorizeTransaction(tx)
}

func largestByAbs(txs []finance.Transaction) *finance.Transaction {
	var largest *finance.Transaction
	for i := range txs {
		if largest == nil || txs[i].Abs() > largest.Abs() {
			largest = &txs[i]
		}
	}
	return largest
}

// topNByAbs returns the n largest transactions by unsigned amount,
// ties broken by date then description for determinism.
func topNByAbs(txs []finance.Transaction, n int) []finance.Transaction {
	sorted := append([]finance.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Abs() != sorted[j].Abs() {
			return sorted[i].Abs() > sorted[j].Abs()
		}
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Description < sorted[j].Description
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// amountAnomalies flags unsigned amounts with a z-score beyond the
// threshold, in input order.
func amountAnomalies(txs []finance.Transaction) []interface{} {
	amounts := make([]float64, len(txs))
	for i, tx := range txs {
		amounts[i] = tx.Abs()
	}
	scores := zScores(amounts)

	anomalies := make([]interface{}, 0)
	for i, z := range scores {
		if z > zScoreThreshold {
			entry := transactionEntry(txs[i])
			entry["z_score"] = protocol.Round2(z)
			anomalies = append(anomalies, entry)
		}
	}
	return anomalies
}

func transactionEntry(tx finance.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"date":        protocol.FormatDay(tx.Date),
		"description": strings.TrimSpace(tx.Description),
		"amount":      protocol.Round2(tx.Amount),
		"type":        string(tx.Type),
	}
}

func transactionSources(txs []finance.Transaction) []protocol.Source {
	sources := make([]protocol.Source, 0, len(txs))
	for _, tx := range txs {
		sources = append(sources, protocol.Source{
			ID:      tx.Identity(),
			Content: store.RenderTransaction(tx),
		})
	}
	return sources
}

// recurringSignature is an equal-amount group of transactions seen at
// least twice, with its observed cadence.
type recurringSignature struct {
	Description string
	Amount      float64
	Occurrences int
	GapDays     float64
	Cadence     string
}

// recurringSignatures groups transactions by equal unsigned amount and
// classifies the cadence of every group seen at least twice. Results
// come back largest amount first.
func recurringSignatures(txs []finance.Transaction) []recurringSignature {
	groups := make(map[float64][]finance.Transaction)
	for _, tx := range txs {
		amount := protocol.Round2(tx.Abs())
		groups[amount] = append(groups[amount], tx)
	}

	amounts := make([]float64, 0, len(groups))
	for amount, members := range groups {
		if len(members) >= 2 {
			amounts = append(amounts, amount)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(amounts)))

	signatures := make([]recurringSignature, 0, len(amounts))
	for _, amount := range amounts {
		members := groups[amount]
		sort.SliceStable(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })
		gap := meanGapDays(members)
		signatures = append(signatures, recurringSignature{
			Description: strings.TrimSpace(members[0].Description),
			Amount:      amount,
			Occurrences: len(members),
			GapDays:     gap,
			Cadence:     cadenceOf(gap),
		})
	}
	return signatures
}

// meanGapDays averages the spacing between consecutive dated events.
// The slice must be sorted by date and hold at least two entries.
func meanGapDays(txs []finance.Transaction) float64 {
	span := txs[len(txs)-1].Date.Sub(txs[0].Date)
	return span.Hours() / 24 / float64(len(txs)-1)
}

// cadenceOf maps an average gap to a named cadence. 25 to 35 days
// reads as monthly, 12 to 16 as biweekly.
func cadenceOf(gapDays float64) string {
	switch {
	case gapDays >= 25 && gapDays <= 35:
		return "monthly"
	case gapDays >= 12 && gapDays <= 16:
		return "biweekly"
	default:
		return "irregular"
	}
}

// dateRange returns the first and last transaction dates. ok is false
// on an empty slice.
func dateRange(txs []finance.Transaction) (first, last string, ok bool) {
	if len(txs) == 0 {
		return "", "", false
	}
	lo, hi := txs[0].Date, txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.Before(lo) {
			lo = tx.Date
		}
		if tx.Date.After(hi) {
			hi = tx.Date
		}
	}
	return protocol.FormatDay(lo), protocol.FormatDay(hi), true
}

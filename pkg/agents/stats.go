package agents

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// zScoreThreshold flags a transaction amount as anomalous.
const zScoreThreshold = 2.5

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// coefficientOfVariation is stddev/mean. Returns nil when fewer than
// two samples exist or the mean is zero: no spread is measurable.
func coefficientOfVariation(xs []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	m := mean(xs)
	if m == 0 {
		return nil
	}
	cv := stdDev(xs) / math.Abs(m)
	return protocol.Finite(cv)
}

// zScores returns the score per sample; all zeros when the spread is
// degenerate.
func zScores(xs []float64) []float64 {
	out := make([]float64, len(xs))
	sd := stdDev(xs)
	if sd == 0 {
		return out
	}
	m := mean(xs)
	for i, x := range xs {
		out[i] = (x - m) / sd
	}
	return out
}

// linearSlope fits y = alpha + beta*x over x = 0..n-1 and returns beta.
// Needs at least two points.
func linearSlope(ys []float64) (float64, bool) {
	if len(ys) < 2 {
		return 0, false
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, false
	}
	return beta, true
}

// safeDiv divides with a nil result on zero denominators and non-finite
// quotients, so serialized analysis never carries infinities.
func safeDiv(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	return protocol.Finite(protocol.Round2(num / den))
}

// safePct is safeDiv scaled to percent.
func safePct(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	return protocol.Finite(protocol.Round2(num / den * 100))
}

// monthlyTotals buckets unsigned amounts by calendar month and returns
// the totals in chronological key order alongside the sorted keys.
func monthlyTotals(txs []finance.Transaction) ([]string, []float64) {
	buckets := make(map[string]float64)
	for _, tx := range txs {
		buckets[tx.MonthKey()] += tx.Abs()
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	totals := make([]float64, len(keys))
	for i, k := range keys {
		totals[i] = protocol.Round2(buckets[k])
	}
	return keys, totals
}

// clipScore bounds a score to [lo, hi].
func clipScore(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// deref turns an optional float into its JSON value, null when absent.
func deref(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

package agents

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

const (
	exactMatchPoints  = 50.0
	recentMatchPoints = 20.0
	recentWindow      = 7 * 24 * time.Hour
	maxMatches        = 10
)

// searchAnalyzer ranks transactions against the query text with a
// fuzzy relevance score.
type searchAnalyzer struct{}

func (a *searchAnalyzer) Category() protocol.AgentCategory {
	return protocol.CategoryTransaction
}

func (a *searchAnalyzer) Aspects(exec *Execution) Aspects {
	return Aspects{
		TimePeriod:       "the full range of uploaded transactions, newest weighted higher",
		Categories:       "descriptions, amounts, and dates matched against the query terms",
		AnalysisType:     "fuzzy search ranking by exact substring, token overlap, and recency",
		BusinessContext:  "bank statement descriptions are terse and abbreviated; partial token matches still identify the right records",
		DataRequirements: "the query text and every transaction's description, amount, and date",
		OpenQuestions:    "which records the user is actually after when the query is partial or misspelled",
		OutputFormat:     "the matching transactions ranked by relevance, with dates and amounts",
	}
}

func (a *searchAnalyzer) Reduce(exec *Execution) (*Reduction, error) {
	queryNorm := normalizeText(exec.Query)
	queryTokens := strings.Fields(queryNorm)
	queryAmount := firstAmount(queryTokens)

	var latest time.Time
	for _, tx := range exec.Transactions {
		if tx.Date.After(latest) {
			latest = tx.Date
		}
	}

	type scored struct {
		tx    finance.Transaction
		score float64
	}
	ranked := make([]scored, 0, len(exec.Transactions))
	for _, tx := range exec.Transactions {
		score := relevanceScore(tx, queryNorm, queryTokens, queryAmount, latest)
		if score > 0 {
			ranked = append(ranked, scored{tx: tx, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].tx.Date.After(ranked[j].tx.Date)
	})

	matches := make([]interface{}, 0, maxMatches)
	sources := make([]finance.Transaction, 0, maxSources)
	for i, r := range ranked {
		if i == maxMatches {
			break
		}
		entry := transactionEntry(r.tx)
		entry["relevance"] = r.score
		matches = append(matches, entry)
		if len(sources) < maxSources {
			sources = append(sources, r.tx)
		}
	}

	analysis := map[string]interface{}{
		"query":          exec.Query,
		"match_count":    len(ranked),
		"matches":        matches,
		"total_searched": len(exec.Transactions),
	}

	return &Reduction{
		Analysis: analysis,
		Statistics: map[string]interface{}{
			"match_count":    len(ranked),
			"total_searched": len(exec.Transactions),
		},
		Sources: transactionSources(sources),
		Summary: a.summarize(exec.Query, len(ranked), len(exec.Transactions), matches),
	}, nil
}

func (a *searchAnalyzer) summarize(query string, matchCount, total int, matches []interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Matches for %q: %d of %d transactions\n", query, matchCount, total)
	for _, m := range matches {
		entry := m.(map[string]interface{})
		fmt.Fprintf(&b, "- %s %s %s SAR (relevance %.1f)\n",
			entry["date"], entry["description"],
			protocol.FormatAmount(entry["amount"].(float64)), entry["relevance"])
	}
	return b.String()
}

// relevanceScore adds 50 for an exact normalized substring or an
// amount within one riyal of a number in the query, plus half the
// token overlap ratio. Matches within a week of the newest
// transaction in the set take a 20-point recency bonus; recency alone
// never qualifies a record.
func relevanceScore(tx finance.Transaction, queryNorm string, queryTokens []string, queryAmount *float64, latest time.Time) float64 {
	desc := normalizeText(tx.Description)

	exact := queryNorm != "" && strings.Contains(desc, queryNorm)
	if !exact && queryAmount != nil && math.Abs(tx.Abs()-*queryAmount) <= 1 {
		exact = true
	}

	score := 0.0
	if exact {
		score += exactMatchPoints
	}
	if len(queryTokens) > 0 {
		descTokens := make(map[string]bool)
		for _, t := range strings.Fields(desc) {
			descTokens[t] = true
		}
		matched := 0
		for _, qt := range queryTokens {
			if descTokens[qt] {
				matched++
			}
		}
		ratio := 100 * float64(matched) / float64(len(queryTokens))
		score += ratio / 2
	}
	if score == 0 {
		return 0
	}
	if latest.Sub(tx.Date) < recentWindow {
		score += recentMatchPoints
	}
	return protocol.Round2(score)
}

// normalizeText lowercases and reduces text to space-joined
// alphanumeric tokens, mirroring how descriptions are categorized.
func normalizeText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '.'
	})
	return strings.Join(fields, " ")
}

// firstAmount picks the first numeric token out of the query.
func firstAmount(tokens []string) *float64 {
	for _, t := range tokens {
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			v = math.Abs(v)
			return &v
		}
	}
	return nil
}

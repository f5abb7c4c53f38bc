package router

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

const dayLayout = "2006-01-02"

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	wordDateRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\b(?:\s+(\d{4})\b)?`)

	amountBetweenRe = regexp.MustCompile(`(?i)\bbetween\s+(?:sar\s*)?(\d[\d,]*(?:\.\d+)?)\s+and\s+(?:sar\s*)?(\d[\d,]*(?:\.\d+)?)`)
	amountMinRe     = regexp.MustCompile(`(?i)\b(?:over|above|exceeding|more than|greater than|at least)\s+(?:sar\s*)?(\d[\d,]*(?:\.\d+)?)`)
	amountMaxRe     = regexp.MustCompile(`(?i)\b(?:under|below|less than|at most|up to|within)\s+(?:sar\s*)?(\d[\d,]*(?:\.\d+)?)`)
	amountExactRe   = regexp.MustCompile(`(?i)\bsar\s*(\d[\d,]*(?:\.\d+)?)|\b(\d[\d,]*(?:\.\d+)?)\s*(?:sar|riyals?)\b`)

	quotedRe   = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	merchantRe = regexp.MustCompile(`\b(?:at|from|to)\s+([A-Z][A-Za-z0-9&'.-]*(?:\s+[A-Z][A-Za-z0-9&'.-]*)*)`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func monthByName(name string) (time.Month, bool) {
	m, ok := months[name]
	return m, ok
}

// extractFilters runs the deterministic extraction over the raw query
// text. now anchors relative date forms.
func extractFilters(query string, now time.Time) (protocol.QueryFilters, error) {
	var f protocol.QueryFilters
	start, end, err := extractDateRange(query, now)
	if err != nil {
		return f, err
	}
	f.DateStart, f.DateEnd = start, end
	f.AmountMin, f.AmountMax = extractAmounts(query)
	f.Merchants = extractMerchants(query)
	f.Keywords = extractKeywords(query)
	f.TransactionType = extractTransactionType(query)
	return f, nil
}

type dateMention struct {
	pos int
	t   time.Time
}

// collectDates finds every absolute date in the query, in the order
// written. A day-month form without a year takes the current year.
func collectDates(query string, now time.Time) []dateMention {
	var out []dateMention
	for _, m := range isoDateRe.FindAllStringSubmatchIndex(query, -1) {
		if t, err := time.Parse(dayLayout, query[m[0]:m[1]]); err == nil {
			out = append(out, dateMention{pos: m[0], t: t})
		}
	}
	for _, m := range slashDateRe.FindAllStringSubmatchIndex(query, -1) {
		day, _ := strconv.Atoi(query[m[2]:m[3]])
		month, _ := strconv.Atoi(query[m[4]:m[5]])
		year, _ := strconv.Atoi(query[m[6]:m[7]])
		if t, ok := civilDate(year, month, day); ok {
			out = append(out, dateMention{pos: m[0], t: t})
		}
	}
	for _, m := range wordDateRe.FindAllStringSubmatchIndex(query, -1) {
		day, _ := strconv.Atoi(query[m[2]:m[3]])
		month, ok := monthByName(strings.ToLower(query[m[4]:m[5]]))
		if !ok {
			continue
		}
		year := now.Year()
		if m[6] >= 0 {
			year, _ = strconv.Atoi(query[m[6]:m[7]])
		}
		if t, ok := civilDate(year, int(month), day); ok {
			out = append(out, dateMention{pos: m[0], t: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// civilDate builds a UTC midnight date, rejecting overflow like 31/02.
func civilDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// extractDateRange resolves the date window stated by the query. Two
// absolute dates form a range in the order written; writing them
// inverted is an InvalidQuery error. A single date expands to that day
// unless a since/until qualifier opens one side. Relative forms apply
// only when no absolute date appears.
func extractDateRange(query string, now time.Time) (string, string, error) {
	dates := collectDates(query, now)
	switch {
	case len(dates) >= 2:
		a, b := dates[0].t, dates[1].t
		if a.After(b) {
			return "", "", protocol.InvalidQuery("date range is inverted: start is after end")
		}
		return a.Format(dayLayout), b.Format(dayLayout), nil
	case len(dates) == 1:
		d := dates[0].t.Format(dayLayout)
		switch qualifierBefore(query, dates[0].pos) {
		case "since", "after", "from":
			return d, "", nil
		case "before", "until", "till", "by":
			return "", d, nil
		}
		return d, d, nil
	}
	s, e := relativeDateRange(query, now)
	return s, e, nil
}

// qualifierBefore returns the lowercased word immediately preceding
// pos in the query.
func qualifierBefore(query string, pos int) string {
	head := strings.TrimRight(query[:pos], " \t")
	if head == "" {
		return ""
	}
	fields := strings.Fields(head)
	return strings.ToLower(strings.Trim(fields[len(fields)-1], ".,;:"))
}

type relativeRange struct {
	phrase string
	bounds func(today time.Time) (time.Time, time.Time)
}

// relativeRanges lists the recognized relative forms. Weeks start on
// Sunday, matching the Saudi work week.
var relativeRanges = []relativeRange{
	{"last month", func(d time.Time) (time.Time, time.Time) {
		first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return first, first.AddDate(0, 1, -1)
	}},
	{"this month", func(d time.Time) (time.Time, time.Time) {
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC), d
	}},
	{"last week", func(d time.Time) (time.Time, time.Time) {
		weekStart := d.AddDate(0, 0, -int(d.Weekday()))
		return weekStart.AddDate(0, 0, -7), weekStart.AddDate(0, 0, -1)
	}},
	{"this week", func(d time.Time) (time.Time, time.Time) {
		return d.AddDate(0, 0, -int(d.Weekday())), d
	}},
	{"last year", func(d time.Time) (time.Time, time.Time) {
		return time.Date(d.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(d.Year()-1, 12, 31, 0, 0, 0, 0, time.UTC)
	}},
	{"this year", func(d time.Time) (time.Time, time.Time) {
		return time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC), d
	}},
	{"yesterday", func(d time.Time) (time.Time, time.Time) {
		y := d.AddDate(0, 0, -1)
		return y, y
	}},
	{"today", func(d time.Time) (time.Time, time.Time) {
		return d, d
	}},
}

// relativeDateRange resolves the earliest relative phrase in the
// query. A since/until qualifier before the phrase opens one side.
func relativeDateRange(query string, now time.Time) (string, string) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	norm := strings.ToLower(query)

	best := -1
	var match relativeRange
	for _, rr := range relativeRanges {
		if idx := strings.Index(norm, rr.phrase); idx >= 0 && (best == -1 || idx < best) {
			best = idx
			match = rr
		}
	}
	if best == -1 {
		return "", ""
	}

	s, e := match.bounds(today)
	switch qualifierBefore(norm, best) {
	case "since", "after", "from":
		return s.Format(dayLayout), ""
	case "before", "until", "till", "by":
		return "", e.Format(dayLayout)
	}
	return s.Format(dayLayout), e.Format(dayLayout)
}

type charSpan struct{ start, end int }

func overlaps(spans []charSpan, s, e int) bool {
	for _, sp := range spans {
		if s < sp.end && e > sp.start {
			return true
		}
	}
	return false
}

// countNouns reject comparator numbers that count records rather than
// stating amounts ("more than 5 transactions").
var countNouns = map[string]bool{
	"transaction": true, "transactions": true, "payment": true, "payments": true,
	"record": true, "records": true, "item": true, "items": true,
	"entry": true, "entries": true, "time": true, "times": true,
	"day": true, "days": true, "week": true, "weeks": true,
	"month": true, "months": true, "result": true, "results": true,
}

func nextToken(query string, pos int) string {
	rest := strings.TrimLeft(query[pos:], " \t")
	if rest == "" {
		return ""
	}
	fields := strings.Fields(rest)
	return strings.ToLower(strings.Trim(fields[0], ".,;:?!"))
}

func followedByCountNoun(query string, end int) bool {
	return countNouns[nextToken(query, end)]
}

func monthFollows(query string, end int) bool {
	_, ok := monthByName(nextToken(query, end))
	return ok
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// extractAmounts resolves the amount window. Precedence: an explicit
// between range, then over/under comparators, then the first
// currency-marked amount widened by the one-riyal match tolerance.
// Numbers followed by a month name or a count noun are not amounts.
func extractAmounts(query string) (*float64, *float64) {
	if m := amountBetweenRe.FindStringSubmatchIndex(query); m != nil && !monthFollows(query, m[1]) {
		lo, okLo := parseAmount(query[m[2]:m[3]])
		hi, okHi := parseAmount(query[m[4]:m[5]])
		if okLo && okHi {
			if lo > hi {
				lo, hi = hi, lo
			}
			return &lo, &hi
		}
	}

	var used []charSpan
	var min, max *float64
	if m := amountMinRe.FindStringSubmatchIndex(query); m != nil &&
		!followedByCountNoun(query, m[1]) && !monthFollows(query, m[1]) {
		if v, ok := parseAmount(query[m[2]:m[3]]); ok {
			min = &v
			used = append(used, charSpan{m[0], m[1]})
		}
	}
	if m := amountMaxRe.FindStringSubmatchIndex(query); m != nil && !overlaps(used, m[0], m[1]) &&
		!followedByCountNoun(query, m[1]) && !monthFollows(query, m[1]) {
		if v, ok := parseAmount(query[m[2]:m[3]]); ok {
			max = &v
			used = append(used, charSpan{m[0], m[1]})
		}
	}
	if min != nil || max != nil {
		if min != nil && max != nil && *min > *max {
			min, max = max, min
		}
		return min, max
	}

	for _, m := range amountExactRe.FindAllStringSubmatchIndex(query, -1) {
		if overlaps(used, m[0], m[1]) {
			continue
		}
		g := 2
		if m[2] < 0 {
			g = 4
		}
		if v, ok := parseAmount(query[m[g]:m[g+1]]); ok {
			lo, hi := v-1, v+1
			if lo < 0 {
				lo = 0
			}
			return &lo, &hi
		}
	}
	return nil, nil
}

// extractMerchants picks up quoted names and at/from/to followed by a
// capitalized phrase. Single-quoted strings are skipped: apostrophes
// make them unreliable.
func extractMerchants(query string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(strings.Trim(s, `"“”.,;:!?`))
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}

	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}
	for _, m := range merchantRe.FindAllStringSubmatch(query, -1) {
		if phrase := trimMerchantPhrase(m[1]); phrase != "" {
			add(phrase)
		}
	}
	return out
}

// trimMerchantPhrase strips calendar and currency words from the
// phrase edges; a phrase of nothing else is dropped entirely.
func trimMerchantPhrase(phrase string) string {
	tokens := strings.Fields(phrase)
	for len(tokens) > 0 && merchantStopToken(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && merchantStopToken(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

func merchantStopToken(tok string) bool {
	t := strings.ToLower(strings.Trim(tok, ".,;:!?"))
	switch t {
	case "sar", "sr", "riyal", "riyals", "today", "yesterday":
		return true
	}
	_, isMonth := monthByName(t)
	return isMonth
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// extractKeywords matches query tokens against the closed banking
// vocabulary, in vocabulary order.
func extractKeywords(query string) []string {
	tokens := make(map[string]bool)
	for _, t := range tokenize(query) {
		tokens[t] = true
	}
	var out []string
	for _, kw := range finance.QueryKeywords {
		if tokens[kw] {
			out = append(out, kw)
		}
	}
	return out
}

// extractTransactionType restricts direction only on an unambiguous
// mention; naming both sides filters neither.
func extractTransactionType(query string) string {
	credit, debit := false, false
	for _, t := range tokenize(query) {
		switch t {
		case "credit", "credits", "deposit", "deposits", "incoming":
			credit = true
		case "debit", "debits", "withdrawal", "withdrawals", "outgoing":
			debit = true
		}
	}
	if credit == debit {
		return ""
	}
	if credit {
		return "credit"
	}
	return "debit"
}

// mergeFilters overlays the deterministic extraction onto the
// classifier's filters. Extracted values win; classifier values
// survive only where extraction found nothing, and only well formed.
func mergeFilters(dst *protocol.QueryFilters, extracted protocol.QueryFilters) {
	if extracted.DateStart != "" || extracted.DateEnd != "" {
		dst.DateStart, dst.DateEnd = extracted.DateStart, extracted.DateEnd
	} else if !validDatePair(dst.DateStart, dst.DateEnd) {
		dst.DateStart, dst.DateEnd = "", ""
	}

	if extracted.AmountMin != nil || extracted.AmountMax != nil {
		dst.AmountMin, dst.AmountMax = extracted.AmountMin, extracted.AmountMax
	} else if dst.AmountMin != nil && dst.AmountMax != nil && *dst.AmountMin > *dst.AmountMax {
		dst.AmountMin, dst.AmountMax = nil, nil
	}

	if len(extracted.Merchants) > 0 {
		dst.Merchants = extracted.Merchants
	} else {
		dst.Merchants = cleanStrings(dst.Merchants)
	}

	seen := make(map[string]bool)
	for _, k := range extracted.Keywords {
		seen[k] = true
	}
	for _, k := range dst.Keywords {
		seen[strings.ToLower(strings.TrimSpace(k))] = true
	}
	dst.Keywords = nil
	for _, kw := range finance.QueryKeywords {
		if seen[kw] {
			dst.Keywords = append(dst.Keywords, kw)
		}
	}

	if extracted.TransactionType != "" {
		dst.TransactionType = extracted.TransactionType
	} else if t := strings.ToLower(dst.TransactionType); t == "credit" || t == "debit" {
		dst.TransactionType = t
	} else {
		dst.TransactionType = ""
	}
}

// validDatePair accepts empty or parseable day bounds in order.
func validDatePair(start, end string) bool {
	var s, e time.Time
	var err error
	if start != "" {
		if s, err = time.Parse(dayLayout, start); err != nil {
			return false
		}
	}
	if end != "" {
		if e, err = time.Parse(dayLayout, end); err != nil {
			return false
		}
	}
	if start != "" && end != "" && s.After(e) {
		return false
	}
	return true
}

func cleanStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// =============================================================================
// Tabular exports (CSV, XLSX)
// =============================================================================

type column int

const (
	colNone column = iota
	colDate
	colDescription
	colAmount
	colDebit
	colCredit
	colBalance
	colType
	colCategory
	colReference
)

// headerColumns maps normalized header cells to columns. Bank exports
// disagree on names; synonyms cover the layouts seen in the wild, both
// single signed-amount columns and split debit/credit columns.
var headerColumns = map[string]column{
	"date":             colDate,
	"transaction date": colDate,
	"value date":       colDate,
	"posting date":     colDate,

	"description":         colDescription,
	"details":             colDescription,
	"transaction details": colDescription,
	"narration":           colDescription,
	"particulars":         colDescription,
	"memo":                colDescription,

	"amount":             colAmount,
	"transaction amount": colAmount,

	"debit":        colDebit,
	"debit amount": colDebit,
	"withdrawal":   colDebit,
	"withdrawals":  colDebit,

	"credit":        colCredit,
	"credit amount": colCredit,
	"deposit":       colCredit,
	"deposits":      colCredit,

	"balance":         colBalance,
	"running balance": colBalance,
	"closing balance": colBalance,

	"type":             colType,
	"transaction type": colType,
	"dr/cr":            colType,
	"direction":        colType,

	"category": colCategory,

	"reference":        colReference,
	"ref":              colReference,
	"reference number": colReference,
	"reference no":     colReference,
	"transaction id":   colReference,
}

// normalizeHeader folds case and spacing and drops a trailing
// parenthetical, so "Amount (SAR)" and "amount" compare equal.
func normalizeHeader(cell string) string {
	s := strings.ToLower(strings.TrimSpace(cell))
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, " / ", "/")
	return strings.Join(strings.Fields(s), " ")
}

type tableLayout struct {
	cols map[column]int
}

// detectLayout reads a candidate header row. A usable layout names a
// date column and at least one amount-bearing column.
func detectLayout(row []string) (tableLayout, bool) {
	cols := make(map[column]int, len(row))
	for i, cell := range row {
		c, ok := headerColumns[normalizeHeader(cell)]
		if !ok {
			continue
		}
		if _, taken := cols[c]; !taken {
			cols[c] = i
		}
	}
	_, hasDate := cols[colDate]
	_, hasAmount := cols[colAmount]
	_, hasDebit := cols[colDebit]
	_, hasCredit := cols[colCredit]
	return tableLayout{cols: cols}, hasDate && (hasAmount || hasDebit || hasCredit)
}

func (l tableLayout) cell(row []string, c column) string {
	i, ok := l.cols[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseRow extracts one transaction. Rows that carry no parseable date,
// no amount, or no description are not transactions (bank exports mix
// in title, footer, and subtotal rows) and report ok=false.
func (l tableLayout) parseRow(row []string) (finance.Transaction, bool) {
	var tx finance.Transaction

	date, err := parseFlexibleDate(l.cell(row, colDate))
	if err != nil {
		return tx, false
	}
	tx.Date = date
	tx.Description = l.cell(row, colDescription)

	if c := l.cell(row, colAmount); c != "" {
		if amount, err := parseAmount(c); err == nil {
			tx.Amount = amount
		}
	}
	if tx.Amount == 0 {
		if c := l.cell(row, colDebit); c != "" {
			if amount, err := parseAmount(c); err == nil && amount != 0 {
				tx.Amount = amount
				tx.Type = finance.Debit
			}
		}
	}
	if tx.Amount == 0 {
		if c := l.cell(row, colCredit); c != "" {
			if amount, err := parseAmount(c); err == nil && amount != 0 {
				tx.Amount = amount
				tx.Type = finance.Credit
			}
		}
	}
	if t, ok := parseTransactionType(l.cell(row, colType)); ok {
		tx.Type = t
	}
	if c := l.cell(row, colBalance); c != "" {
		if balance, err := parseAmount(c); err == nil {
			tx.Balance = &balance
		}
	}
	tx.Category = l.cell(row, colCategory)
	tx.Reference = l.cell(row, colReference)

	if tx.Amount == 0 || tx.Description == "" {
		return tx, false
	}
	return tx, true
}

// parseGrid locates the header row and extracts every transaction row
// after it.
func parseGrid(rows [][]string) ([]finance.Transaction, error) {
	var layout tableLayout
	start := -1
	for i, row := range rows {
		if l, ok := detectLayout(row); ok {
			layout, start = l, i+1
			break
		}
	}
	if start < 0 {
		return nil, protocol.InvalidUpload("no header row with date and amount columns found")
	}

	var txns []finance.Transaction
	for _, row := range rows[start:] {
		if tx, ok := layout.parseRow(row); ok {
			txns = append(txns, tx)
		}
	}
	if len(txns) == 0 {
		return nil, protocol.InvalidUpload("no transaction rows found after the header")
	}
	return Normalize(txns)
}

// ParseTransactionsCSV reads a bank CSV export. The header row is
// located by its column names rather than assumed to be first, since
// exports often open with account banners.
func ParseTransactionsCSV(r io.Reader) ([]finance.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, protocol.InvalidUpload("malformed CSV: %s", err.Error())
	}
	return parseGrid(rows)
}

// ParseTransactionsXLSX reads the first sheet of a workbook export
// with the same header conventions as CSV.
func ParseTransactionsXLSX(r io.Reader) ([]finance.Transaction, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, protocol.InvalidUpload("malformed workbook: %s", err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, protocol.InvalidUpload("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, protocol.InvalidUpload("reading sheet %q: %s", sheets[0], err.Error())
	}
	return parseGrid(rows)
}

// =============================================================================
// PDF statements
// =============================================================================

// ParseTransactionsPDF extracts transaction rows from a PDF statement.
// Extracted text is scanned for date-led rows; a DR/CR marker or the
// printed sign decides direction, and when a row carries two amounts
// the last one is the running balance.
func ParseTransactionsPDF(ctx context.Context, r io.ReaderAt, size int64) ([]finance.Transaction, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, protocol.InvalidUpload("malformed PDF: %s", err.Error())
	}

	var text strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("Skipping unreadable PDF page", "page", pageNum, "error", err)
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return parsePDFText(text.String())
}

// pdfDate matches the two date shapes banks print. It doubles as the
// row delimiter because PDF text extraction does not preserve reliable
// line breaks.
var pdfDate = regexp.MustCompile(`\d{2}/\d{2}/\d{4}|\d{4}-\d{2}-\d{2}`)

func parsePDFText(text string) ([]finance.Transaction, error) {
	var txns []finance.Transaction
	for _, row := range pdfRows(text) {
		if tx, ok := parsePDFRow(row); ok {
			txns = append(txns, tx)
		}
	}
	if len(txns) == 0 {
		return nil, protocol.InvalidUpload("no transaction rows recognized in PDF text")
	}
	return Normalize(txns)
}

// pdfRows slices extracted text into one segment per printed date. A
// segment also ends at a preserved line break so page footers do not
// glue onto the last row.
func pdfRows(text string) []string {
	starts := pdfDate.FindAllStringIndex(text, -1)
	rows := make([]string, 0, len(starts))
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		row := text[loc[0]:end]
		if nl := strings.IndexByte(row, '\n'); nl >= 0 {
			row = row[:nl]
		}
		rows = append(rows, strings.TrimSpace(row))
	}
	return rows
}

// parsePDFRow reads "date description ... amount [balance]" with an
// optional DR/CR marker near the tail. Amounts are collected from the
// right; the leftmost of the trailing pair is the transaction amount.
func parsePDFRow(row string) (finance.Transaction, bool) {
	var tx finance.Transaction

	fields := strings.Fields(row)
	if len(fields) < 3 {
		return tx, false
	}
	date, err := parseFlexibleDate(fields[0])
	if err != nil {
		return tx, false
	}
	tx.Date = date
	rest := fields[1:]

	// Only the bare DR/CR marker is consumed here; words like
	// "WITHDRAWAL" belong to the description on printed statements.
	var amounts []float64
	for len(rest) > 0 {
		last := rest[len(rest)-1]
		if tx.Type == "" {
			switch strings.ToLower(last) {
			case "dr":
				tx.Type = finance.Debit
				rest = rest[:len(rest)-1]
				continue
			case "cr":
				tx.Type = finance.Credit
				rest = rest[:len(rest)-1]
				continue
			}
		}
		if len(amounts) == 2 {
			break
		}
		v, err := parseAmount(last)
		if err != nil {
			break
		}
		amounts = append(amounts, v)
		rest = rest[:len(rest)-1]
	}

	switch len(amounts) {
	case 0:
		return tx, false
	case 1:
		tx.Amount = amounts[0]
	default:
		balance := amounts[0]
		tx.Balance = &balance
		tx.Amount = amounts[1]
	}

	tx.Description = strings.Join(rest, " ")
	if tx.Description == "" {
		return tx, false
	}
	return tx, true
}

// =============================================================================
// JSON records
// =============================================================================

// ParseTransactionsJSON decodes the canonical record array: RFC3339
// day dates, signed amounts, explicit credit/debit types.
func ParseTransactionsJSON(data []byte) ([]finance.Transaction, error) {
	var txns []finance.Transaction
	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, protocol.InvalidUpload("malformed transactions JSON: %s", err.Error())
	}
	if len(txns) == 0 {
		return nil, protocol.InvalidUpload("transactions payload is empty")
	}
	return Normalize(txns)
}

// =============================================================================
// Cell parsing
// =============================================================================

// dateLayouts are tried in order. Saudi bank exports write days first:
// 15/01/2024 is January 15th.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"02 Jan 2006",
	"2 Jan 2006",
}

func parseFlexibleDate(cell string) (time.Time, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseAmount reads a SAR amount: comma grouping, an optional currency
// token, and accounting parentheses for negatives.
func parseAmount(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) > 2 {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	s = strings.ToUpper(s)
	s = strings.TrimSuffix(s, "SAR")
	s = strings.TrimPrefix(s, "SAR")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", cell, err)
	}
	if negative {
		v = -v
	}
	return v, nil
}

func parseTransactionType(cell string) (finance.TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "debit", "dr", "d", "withdrawal":
		return finance.Debit, true
	case "credit", "cr", "c", "deposit":
		return finance.Credit, true
	}
	return "", false
}

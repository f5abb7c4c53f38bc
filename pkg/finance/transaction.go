// Package finance holds the domain model: bank transactions, corporate
// financial statements, and the keyword tables that drive deterministic
// categorization. Tables are data, not code, so tests can assert exact
// membership and deployments can review them.
package finance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mizanhq/mizan/pkg/protocol"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

// Transaction is one immutable bank transaction in SAR.
// Amount keeps its sign: credits positive, debits negative.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      float64
	Balance     *float64
	Type        TransactionType
	Category    string
	Reference   string
}

type transactionJSON struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Balance     *float64        `json:"balance,omitempty"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category,omitempty"`
	Reference   string          `json:"reference,omitempty"`
}

// MarshalJSON renders the date at RFC3339 day precision, the boundary
// contract for parsed transaction records.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Date:        protocol.FormatDay(t.Date),
		Description: t.Description,
		Amount:      t.Amount,
		Balance:     t.Balance,
		Type:        t.Type,
		Category:    t.Category,
		Reference:   t.Reference,
	})
}

// UnmarshalJSON accepts day-precision dates and full RFC3339 timestamps.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	day, err := protocol.ParseDay(raw.Date)
	if err != nil {
		return fmt.Errorf("transaction date %q: %w", raw.Date, err)
	}
	t.Date = day
	t.Description = raw.Description
	t.Amount = raw.Amount
	t.Balance = raw.Balance
	t.Type = raw.Type
	t.Category = raw.Category
	t.Reference = raw.Reference
	return nil
}

// Identity is the deduplication key: (date, amount, description).
func (t Transaction) Identity() string {
	return fmt.Sprintf("%s|%s|%s",
		protocol.FormatDay(t.Date),
		protocol.FormatAmount(t.Amount),
		strings.TrimSpace(t.Description))
}

// Abs returns the unsigned amount.
func (t Transaction) Abs() float64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// MonthKey buckets the transaction by calendar month ("2006-01").
func (t Transaction) MonthKey() string {
	return t.Date.UTC().Format("2006-01")
}

// Debits returns the debit subset, order preserved.
func Debits(txs []Transaction) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.Type == Debit {
			out = append(out, tx)
		}
	}
	return out
}

// Credits returns the credit subset, order preserved.
func Credits(txs []Transaction) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.Type == Credit {
			out = append(out, tx)
		}
	}
	return out
}

// SumAbs totals unsigned amounts.
func SumAbs(txs []Transaction) float64 {
	var sum float64
	for _, tx := range txs {
		sum += tx.Abs()
	}
	return protocol.Round2(sum)
}

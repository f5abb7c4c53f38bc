// Package ingest turns uploaded files into indexed workspaces. Parsers
// extract transaction records or a financial statement from CSV, XLSX,
// PDF, and JSON payloads; the Indexer validates and normalizes the
// output and replaces the session's previous upload in the semantic
// store. An optional drop-folder watcher feeds the Indexer from disk.
package ingest

import (
	"fmt"
	"strings"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// SupportedExtensions lists the upload formats IngestFile accepts.
func SupportedExtensions() []string {
	return []string{".csv", ".xlsx", ".pdf", ".json"}
}

// Normalize validates parsed transactions and fixes their signs:
// credits positive, debits negative. A record without a type gets one
// from its sign. The input slice is not modified.
func Normalize(txns []finance.Transaction) ([]finance.Transaction, error) {
	out := make([]finance.Transaction, 0, len(txns))
	for i, tx := range txns {
		norm, err := normalizeRecord(tx)
		if err != nil {
			return nil, protocol.InvalidUpload("record %d: %s", i+1, err.Error())
		}
		out = append(out, norm)
	}
	return out, nil
}

func normalizeRecord(tx finance.Transaction) (finance.Transaction, error) {
	tx.Description = strings.Join(strings.Fields(tx.Description), " ")
	if tx.Description == "" {
		return tx, fmt.Errorf("missing description")
	}
	if tx.Date.IsZero() {
		return tx, fmt.Errorf("missing date")
	}
	if tx.Amount == 0 {
		return tx, fmt.Errorf("zero amount")
	}

	switch tx.Type {
	case finance.Credit:
		tx.Amount = tx.Abs()
	case finance.Debit:
		tx.Amount = -tx.Abs()
	case "":
		if tx.Amount < 0 {
			tx.Type = finance.Debit
		} else {
			tx.Type = finance.Credit
		}
	default:
		return tx, fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	tx.Date = tx.Date.UTC()
	tx.Amount = protocol.Round2(tx.Amount)
	tx.Category = strings.TrimSpace(tx.Category)
	tx.Reference = strings.TrimSpace(tx.Reference)
	return tx, nil
}

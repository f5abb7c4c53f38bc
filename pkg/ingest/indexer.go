package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Store is the write side of the semantic store the Indexer drives.
type Store interface {
	Clear(ctx context.Context, sessionID string, docType protocol.DocumentType) error
	IndexTransactions(ctx context.Context, ws protocol.Workspace, txns []finance.Transaction) (int, error)
	IndexFinancialData(ctx context.Context, ws protocol.Workspace, stmt *finance.Statement) (int, error)
}

// Indexer bridges parsers and the semantic store. Each upload replaces
// the session's previous workspace of the same document type; Clear and
// Index run under a per-session lock so a re-upload never races another
// for the same session.
type Indexer struct {
	store    Store
	maxBytes int64

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewIndexer wires an Indexer. cfg may be nil for defaults.
func NewIndexer(store Store, cfg *config.IngestConfig) *Indexer {
	maxMB := 20
	if cfg != nil && cfg.MaxFileMB > 0 {
		maxMB = cfg.MaxFileMB
	}
	return &Indexer{
		store:    store,
		maxBytes: int64(maxMB) << 20,
		sessions: make(map[string]*sync.Mutex),
	}
}

func (ix *Indexer) sessionLock(sessionID string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	lock, ok := ix.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		ix.sessions[sessionID] = lock
	}
	return lock
}

// IndexTransactions normalizes the records and replaces the session's
// transactions workspace.
func (ix *Indexer) IndexTransactions(ctx context.Context, ws protocol.Workspace, txns []finance.Transaction) (int, error) {
	if err := ws.Validate(); err != nil {
		return 0, protocol.InvalidUpload("%s", err.Error())
	}
	if ws.DocumentType != protocol.DocumentTypeTransactions {
		return 0, protocol.InvalidUpload("transaction records require document type %q", protocol.DocumentTypeTransactions)
	}
	if len(txns) == 0 {
		return 0, protocol.InvalidUpload("upload contains no transactions")
	}
	normalized, err := Normalize(txns)
	if err != nil {
		return 0, err
	}
	return ix.replace(ctx, ws, func(ctx context.Context) (int, error) {
		return ix.store.IndexTransactions(ctx, ws, normalized)
	})
}

// IndexStatement replaces the session's financial workspace.
func (ix *Indexer) IndexStatement(ctx context.Context, ws protocol.Workspace, stmt *finance.Statement) (int, error) {
	if err := ws.Validate(); err != nil {
		return 0, protocol.InvalidUpload("%s", err.Error())
	}
	if ws.DocumentType != protocol.DocumentTypeFinancial {
		return 0, protocol.InvalidUpload("financial statements require document type %q", protocol.DocumentTypeFinancial)
	}
	if stmt == nil || stmt.Empty() {
		return 0, protocol.InvalidUpload("statement carries no line items")
	}
	return ix.replace(ctx, ws, func(ctx context.Context) (int, error) {
		return ix.store.IndexFinancialData(ctx, ws, stmt)
	})
}

// replace clears the session's previous upload of this document type
// and indexes the new one under the session lock. The sibling document
// type is untouched: transactions and financial are independent
// namespaces within a session.
func (ix *Indexer) replace(ctx context.Context, ws protocol.Workspace, index func(context.Context) (int, error)) (int, error) {
	lock := ix.sessionLock(ws.SessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := ix.store.Clear(ctx, ws.SessionID, ws.DocumentType); err != nil {
		return 0, err
	}
	count, err := index(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("Upload indexed",
		"session_id", ws.SessionID,
		"upload_id", ws.UploadID,
		"document_type", ws.DocumentType,
		"documents", count,
		"duration", time.Since(start).Round(time.Millisecond))
	return count, nil
}

// IngestFile parses an uploaded file by extension and indexes it.
// Financial statements only arrive as JSON; transactions may be CSV,
// XLSX, PDF, or the canonical JSON array.
func (ix *Indexer) IngestFile(ctx context.Context, ws protocol.Workspace, filename string, r io.Reader) (int, error) {
	if err := ws.Validate(); err != nil {
		return 0, protocol.InvalidUpload("%s", err.Error())
	}
	data, err := ix.readCapped(r)
	if err != nil {
		return 0, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ws.DocumentType == protocol.DocumentTypeFinancial {
		if ext != ".json" {
			return 0, protocol.InvalidUpload("financial statements must be JSON, got %q", ext)
		}
		stmt, err := ParseStatement(data)
		if err != nil {
			return 0, err
		}
		return ix.IndexStatement(ctx, ws, stmt)
	}

	var txns []finance.Transaction
	switch ext {
	case ".csv":
		txns, err = ParseTransactionsCSV(bytes.NewReader(data))
	case ".xlsx":
		txns, err = ParseTransactionsXLSX(bytes.NewReader(data))
	case ".pdf":
		txns, err = ParseTransactionsPDF(ctx, bytes.NewReader(data), int64(len(data)))
	case ".json":
		txns, err = ParseTransactionsJSON(data)
	default:
		return 0, protocol.InvalidUpload("unsupported file type %q", ext)
	}
	if err != nil {
		return 0, err
	}
	return ix.IndexTransactions(ctx, ws, txns)
}

func (ix *Indexer) readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, ix.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > ix.maxBytes {
		return nil, protocol.InvalidUpload("upload exceeds the %d MB limit", ix.maxBytes>>20)
	}
	return data, nil
}

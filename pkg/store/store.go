// Package store composes the embedder and the vector database into the
// semantic store. Every document belongs to exactly one workspace
// (session, document type, upload), and every workspace gets its own
// collection, so retrieval can never cross uploads.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/databases"
	"github.com/mizanhq/mizan/pkg/embedders"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Document kinds stored per workspace. The statement blob carries the
// parsed statement verbatim and is excluded from semantic search.
const (
	DocTypeTransaction = "transaction"
	DocTypeLineItem    = "line_item"
	DocTypeRatio       = "ratio"

	docTypeStatementBlob = "statement_blob"
)

// SemanticStore is the system of record for uploaded documents.
type SemanticStore struct {
	db         databases.DatabaseProvider
	embedder   embedders.Provider
	dim        int
	retrievalK int
	workers    int
}

// New wires a store from an opened backend and embedder.
func New(db databases.DatabaseProvider, embedder embedders.Provider, cfg *config.StoreConfig) *SemanticStore {
	dim := embedder.Dimension()
	if dim <= 0 {
		dim = cfg.EmbeddingDim
	}
	retrievalK := cfg.RetrievalK
	if retrievalK <= 0 {
		retrievalK = 10
	}
	workers := cfg.IndexWorkers
	if workers <= 0 {
		workers = 4
	}
	return &SemanticStore{
		db:         db,
		embedder:   embedder,
		dim:        dim,
		retrievalK: retrievalK,
		workers:    workers,
	}
}

// Filters narrow a retrieval. All set fields combine conjunctively;
// amount bounds apply to the absolute SAR amount, date bounds are
// inclusive days.
type Filters struct {
	Type      string
	AmountMin *float64
	AmountMax *float64
	DateFrom  *time.Time
	DateTo    *time.Time
	DocTypes  []string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.Type == "" && f.AmountMin == nil && f.AmountMax == nil &&
		f.DateFrom == nil && f.DateTo == nil && len(f.DocTypes) == 0
}

func (f Filters) provider() map[string]interface{} {
	m := make(map[string]interface{})
	if f.Type != "" {
		m["type"] = f.Type
	}
	if f.AmountMin != nil || f.AmountMax != nil {
		m["amount_abs"] = databases.Range{GTE: f.AmountMin, LTE: f.AmountMax}
	}
	if f.DateFrom != nil || f.DateTo != nil {
		r := databases.Range{}
		if f.DateFrom != nil {
			v := float64(f.DateFrom.UTC().Unix())
			r.GTE = &v
		}
		if f.DateTo != nil {
			v := float64(f.DateTo.UTC().Unix())
			r.LTE = &v
		}
		m["date_unix"] = r
	}
	if len(f.DocTypes) > 0 {
		m["doc_type"] = append([]string(nil), f.DocTypes...)
	}
	return m
}

// RenderTransaction is the canonical indexed text for a transaction.
// It is deterministic: identical rows render identically, so the
// derived document ID dedups them.
func RenderTransaction(tx finance.Transaction) string {
	return fmt.Sprintf("%s %s %s %s",
		protocol.FormatDay(tx.Date),
		strings.TrimSpace(tx.Description),
		protocol.FormatAmount(tx.Amount),
		tx.Type)
}

// RenderLineItem is the canonical indexed text for a statement line
// item or ratio.
func RenderLineItem(company, period string, item finance.LineItem) string {
	change := "n/a"
	if item.ChangePct != nil {
		change = protocol.FormatAmount(*item.ChangePct) + "%"
	}
	return fmt.Sprintf("%s %s: %s - %s - %s: Current %s, Prior %s, Change %s",
		company, period, item.Kind, item.Section, item.Item,
		protocol.FormatAmount(item.Current),
		protocol.FormatAmount(item.Prior),
		change)
}

// docID derives a deterministic UUID from the upload and the rendered
// text. Both backends accept UUID point ids, and re-indexing the same
// row lands on the same document.
func docID(uploadID, rendering string) string {
	sum := sha256.Sum256([]byte(uploadID + "\n" + rendering))
	return uuid.Must(uuid.FromBytes(sum[:16])).String()
}

// collectionName derives the workspace collection. The three tags are
// sanitized to an alphabet without underscores, so the underscore
// separators stay unambiguous.
func collectionName(ws protocol.Workspace) string {
	return fmt.Sprintf("mizan_%s_%s_%s",
		sanitizeTag(ws.SessionID), ws.DocumentType, sanitizeTag(ws.UploadID))
}

func sanitizeTag(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	tag := b.String()
	// Identifiers are UUIDs in practice; anything longer keeps a hash
	// suffix so two long ids cannot collapse into the same tag.
	if len(tag) > 64 {
		sum := sha256.Sum256([]byte(s))
		tag = tag[:48] + "-" + fmt.Sprintf("%x", sum[:8])
	}
	return tag
}

// matchCollection parses a collection name against workspace tags.
// Empty arguments match anything.
func matchCollection(name, sessionTag string, docType protocol.DocumentType, uploadTag string) bool {
	parts := strings.Split(name, "_")
	if len(parts) != 4 || parts[0] != "mizan" {
		return false
	}
	if sessionTag != "" && parts[1] != sessionTag {
		return false
	}
	if docType != "" && parts[2] != string(docType) {
		return false
	}
	if uploadTag != "" && parts[3] != uploadTag {
		return false
	}
	return true
}

// probeVector is the query vector for reads that embed no text (full
// workspace loads, blob lookups). Unit norm on the first axis.
func probeVector(dim int) []float32 {
	v := make([]float32, dim)
	if dim > 0 {
		v[0] = 1
	}
	return v
}

func searchableDocTypes(dt protocol.DocumentType) []string {
	if dt == protocol.DocumentTypeFinancial {
		return []string{DocTypeLineItem, DocTypeRatio}
	}
	return []string{DocTypeTransaction}
}

// IndexTransactions embeds and stores one document per transaction.
// Returns the number of documents written.
func (s *SemanticStore) IndexTransactions(ctx context.Context, ws protocol.Workspace, txns []finance.Transaction) (int, error) {
	if err := ws.Validate(); err != nil {
		return 0, err
	}

	tracer := observability.GetTracer("mizan.store")
	ctx, span := tracer.Start(ctx, observability.SpanStoreIndex,
		trace.WithAttributes(
			attribute.String(observability.AttrStoreBackend, s.db.Name()),
			attribute.String(observability.AttrDocumentType, string(ws.DocumentType)),
			attribute.Int("store.documents", len(txns)),
		),
	)
	defer span.End()

	start := time.Now()
	collection := collectionName(ws)

	semaphore := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var indexed, failed int64
	var firstErr error
	var errMu sync.Mutex

	for _, tx := range txns {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(tx finance.Transaction) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := s.indexTransaction(ctx, collection, ws, tx); err != nil {
				atomic.AddInt64(&failed, 1)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			atomic.AddInt64(&indexed, 1)
		}(tx)
	}
	wg.Wait()

	n := int(atomic.LoadInt64(&indexed))
	if m := observability.GetGlobalMetrics(); m != nil && n > 0 {
		m.RecordDocumentsIndexed(ctx, s.db.Name(), string(ws.DocumentType), n)
	}
	slog.Info("Indexed transaction documents",
		"session_id", ws.SessionID,
		"upload_id", ws.UploadID,
		"indexed", n,
		"failed", atomic.LoadInt64(&failed),
		"elapsed", time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil && firstErr == nil {
		firstErr = ctxErr
	}
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
		return n, protocol.StoreUnavailable(firstErr)
	}
	span.SetStatus(codes.Ok, "indexed")
	return n, nil
}

func (s *SemanticStore) indexTransaction(ctx context.Context, collection string, ws protocol.Workspace, tx finance.Transaction) error {
	rendering := RenderTransaction(tx)
	vector, err := s.embedder.Embed(ctx, rendering)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}

	category := tx.Category
	if category == "" {
		category = finance.CategorizeTransaction(tx)
	}

	id := docID(ws.UploadID, rendering)
	metadata := map[string]interface{}{
		"session_id":  ws.SessionID,
		"upload_id":   ws.UploadID,
		"doc_type":    DocTypeTransaction,
		"content":     rendering,
		"date":        protocol.FormatDay(tx.Date),
		"date_unix":   tx.Date.UTC().Unix(),
		"amount":      protocol.Round2(tx.Amount),
		"amount_abs":  protocol.Round2(tx.Abs()),
		"type":        string(tx.Type),
		"category":    category,
		"description": strings.TrimSpace(tx.Description),
	}
	if err := s.db.Upsert(ctx, collection, id, vector, metadata); err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

// IndexFinancialData stores one document per line item and per ratio,
// plus the parsed statement itself so insights can reload it whole.
func (s *SemanticStore) IndexFinancialData(ctx context.Context, ws protocol.Workspace, stmt *finance.Statement) (int, error) {
	if err := ws.Validate(); err != nil {
		return 0, err
	}
	if stmt == nil || stmt.Empty() {
		return 0, fmt.Errorf("statement has no line items")
	}

	tracer := observability.GetTracer("mizan.store")
	ctx, span := tracer.Start(ctx, observability.SpanStoreIndex,
		trace.WithAttributes(
			attribute.String(observability.AttrStoreBackend, s.db.Name()),
			attribute.String(observability.AttrDocumentType, string(ws.DocumentType)),
		),
	)
	defer span.End()

	start := time.Now()
	collection := collectionName(ws)
	items := stmt.Flatten()
	span.SetAttributes(attribute.Int("store.documents", len(items)+1))

	semaphore := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var indexed, failed int64
	var firstErr error
	var errMu sync.Mutex

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(item finance.LineItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := s.indexLineItem(ctx, collection, ws, stmt, item); err != nil {
				atomic.AddInt64(&failed, 1)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}
			atomic.AddInt64(&indexed, 1)
		}(item)
	}
	wg.Wait()

	if firstErr == nil && ctx.Err() == nil {
		if err := s.indexStatementBlob(ctx, collection, ws, stmt); err != nil {
			firstErr = err
		} else {
			atomic.AddInt64(&indexed, 1)
		}
	}

	n := int(atomic.LoadInt64(&indexed))
	if m := observability.GetGlobalMetrics(); m != nil && n > 0 {
		m.RecordDocumentsIndexed(ctx, s.db.Name(), string(ws.DocumentType), n)
	}
	slog.Info("Indexed statement documents",
		"session_id", ws.SessionID,
		"upload_id", ws.UploadID,
		"indexed", n,
		"failed", atomic.LoadInt64(&failed),
		"elapsed", time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil && firstErr == nil {
		firstErr = ctxErr
	}
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
		return n, protocol.StoreUnavailable(firstErr)
	}
	span.SetStatus(codes.Ok, "indexed")
	return n, nil
}

func (s *SemanticStore) indexLineItem(ctx context.Context, collection string, ws protocol.Workspace, stmt *finance.Statement, item finance.LineItem) error {
	rendering := RenderLineItem(stmt.CompanyInfo.Name, stmt.Periods.Current, item)
	vector, err := s.embedder.Embed(ctx, rendering)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}

	docType := DocTypeLineItem
	if item.Kind == finance.KindRatio {
		docType = DocTypeRatio
	}

	id := docID(ws.UploadID, rendering)
	metadata := map[string]interface{}{
		"session_id":     ws.SessionID,
		"upload_id":      ws.UploadID,
		"doc_type":       docType,
		"content":        rendering,
		"statement_kind": string(item.Kind),
		"section":        item.Section,
		"item":           item.Item,
		"current":        item.Current,
		"prior":          item.Prior,
	}
	if item.ChangePct != nil {
		metadata["change_pct"] = *item.ChangePct
	}
	if err := s.db.Upsert(ctx, collection, id, vector, metadata); err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

func (s *SemanticStore) indexStatementBlob(ctx context.Context, collection string, ws protocol.Workspace, stmt *finance.Statement) error {
	payload, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("encode statement: %w", err)
	}
	metadata := map[string]interface{}{
		"session_id": ws.SessionID,
		"upload_id":  ws.UploadID,
		"doc_type":   docTypeStatementBlob,
		"content":    string(payload),
	}
	id := docID(ws.UploadID, docTypeStatementBlob)
	if err := s.db.Upsert(ctx, collection, id, probeVector(s.dim), metadata); err != nil {
		return fmt.Errorf("upsert statement blob: %w", err)
	}
	return nil
}

// Search retrieves up to topK documents from the workspace. The
// upload tag is always part of the filter even though the collection
// already isolates; unscoped retrieval is not representable.
func (s *SemanticStore) Search(ctx context.Context, ws protocol.Workspace, queryText string, filters Filters, topK int) ([]databases.SearchResult, error) {
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.retrievalK
	}

	tracer := observability.GetTracer("mizan.store")
	ctx, span := tracer.Start(ctx, observability.SpanStoreSearch,
		trace.WithAttributes(
			attribute.String(observability.AttrStoreBackend, s.db.Name()),
			attribute.String(observability.AttrDocumentType, string(ws.DocumentType)),
		),
	)
	defer span.End()

	start := time.Now()

	vector := probeVector(s.dim)
	if strings.TrimSpace(queryText) != "" {
		embedded, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if m := observability.GetGlobalMetrics(); m != nil {
				m.RecordStoreSearch(ctx, s.db.Name(), time.Since(start), err)
			}
			return nil, protocol.StoreUnavailable(fmt.Errorf("embed query: %w", err))
		}
		vector = embedded
	}

	pf := filters.provider()
	if _, ok := pf["doc_type"]; !ok {
		pf["doc_type"] = searchableDocTypes(ws.DocumentType)
	}
	pf["upload_id"] = ws.UploadID

	results, err := s.db.SearchWithFilter(ctx, collectionName(ws), vector, topK, pf)
	duration := time.Since(start)
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordStoreSearch(ctx, s.db.Name(), duration, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, protocol.StoreUnavailable(err)
	}

	span.SetAttributes(attribute.Int(observability.AttrStoreResults, len(results)))
	span.SetStatus(codes.Ok, "searched")
	return results, nil
}

// LoadTransactions reads the whole workspace back into the transaction
// slice agents reduce over. Order is deterministic regardless of
// similarity: date, then description, then amount.
func (s *SemanticStore) LoadTransactions(ctx context.Context, ws protocol.Workspace) ([]finance.Transaction, error) {
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	collection := collectionName(ws)

	total, err := s.db.Count(ctx, collection)
	if err != nil {
		return nil, protocol.StoreUnavailable(err)
	}
	if total == 0 {
		return nil, protocol.UploadNotFound(ws.UploadID)
	}

	results, err := s.db.SearchWithFilter(ctx, collection, probeVector(s.dim), total, map[string]interface{}{
		"upload_id": ws.UploadID,
		"doc_type":  DocTypeTransaction,
	})
	if err != nil {
		return nil, protocol.StoreUnavailable(err)
	}

	txns := make([]finance.Transaction, 0, len(results))
	for _, r := range results {
		tx, err := transactionFromMetadata(r.Metadata)
		if err != nil {
			slog.Warn("Skipping malformed stored document", "id", r.ID, "error", err)
			continue
		}
		txns = append(txns, tx)
	}
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		if txns[i].Description != txns[j].Description {
			return txns[i].Description < txns[j].Description
		}
		return txns[i].Amount < txns[j].Amount
	})
	return txns, nil
}

// LoadStatement reloads the parsed statement stored at index time.
func (s *SemanticStore) LoadStatement(ctx context.Context, ws protocol.Workspace) (*finance.Statement, error) {
	if err := ws.Validate(); err != nil {
		return nil, err
	}

	results, err := s.db.SearchWithFilter(ctx, collectionName(ws), probeVector(s.dim), 1, map[string]interface{}{
		"upload_id": ws.UploadID,
		"doc_type":  docTypeStatementBlob,
	})
	if err != nil {
		return nil, protocol.StoreUnavailable(err)
	}
	if len(results) == 0 {
		return nil, protocol.UploadNotFound(ws.UploadID)
	}

	var stmt finance.Statement
	if err := json.Unmarshal([]byte(results[0].Content), &stmt); err != nil {
		return nil, protocol.StoreUnavailable(fmt.Errorf("decode statement blob: %w", err))
	}
	return &stmt, nil
}

// VerifyUpload reports whether any indexed documents exist for the
// upload within the session, across both document types.
func (s *SemanticStore) VerifyUpload(ctx context.Context, sessionID, uploadID string) (bool, error) {
	names, err := s.db.ListCollections(ctx)
	if err != nil {
		return false, protocol.StoreUnavailable(err)
	}

	sessionTag := sanitizeTag(sessionID)
	uploadTag := sanitizeTag(uploadID)
	for _, name := range names {
		if !matchCollection(name, sessionTag, "", uploadTag) {
			continue
		}
		n, err := s.db.Count(ctx, name)
		if err != nil {
			return false, protocol.StoreUnavailable(err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// HasWorkspace reports whether the exact workspace holds documents.
func (s *SemanticStore) HasWorkspace(ctx context.Context, ws protocol.Workspace) (bool, error) {
	n, err := s.db.Count(ctx, collectionName(ws))
	if err != nil {
		return false, protocol.StoreUnavailable(err)
	}
	return n > 0, nil
}

// Clear removes workspaces by listing collections and matching tags in
// memory, then dropping whole collections. An empty session clears
// everything; docType narrows to one document type.
func (s *SemanticStore) Clear(ctx context.Context, sessionID string, docType protocol.DocumentType) error {
	names, err := s.db.ListCollections(ctx)
	if err != nil {
		return protocol.StoreUnavailable(err)
	}

	sessionTag := ""
	if sessionID != "" {
		sessionTag = sanitizeTag(sessionID)
	}

	deleted := 0
	for _, name := range names {
		if !matchCollection(name, sessionTag, docType, "") {
			continue
		}
		if err := s.db.DeleteCollection(ctx, name); err != nil {
			return protocol.StoreUnavailable(err)
		}
		deleted++
	}
	slog.Info("Cleared semantic store",
		"session_id", sessionID,
		"document_type", string(docType),
		"collections", deleted)
	return nil
}

// Backend names the underlying database for logs and health output.
func (s *SemanticStore) Backend() string {
	return s.db.Name()
}

// Ping probes the backend with a collection listing.
func (s *SemanticStore) Ping(ctx context.Context) error {
	if _, err := s.db.ListCollections(ctx); err != nil {
		return protocol.StoreUnavailable(err)
	}
	return nil
}

// Close releases the embedder and the backend.
func (s *SemanticStore) Close() error {
	if err := s.embedder.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

func transactionFromMetadata(meta map[string]interface{}) (finance.Transaction, error) {
	date, err := protocol.ParseDay(metadataString(meta, "date"))
	if err != nil {
		return finance.Transaction{}, fmt.Errorf("date: %w", err)
	}
	amount, ok := metadataFloat(meta, "amount")
	if !ok {
		return finance.Transaction{}, fmt.Errorf("amount missing")
	}
	return finance.Transaction{
		Date:        date,
		Description: metadataString(meta, "description"),
		Amount:      amount,
		Type:        finance.TransactionType(metadataString(meta, "type")),
		Category:    metadataString(meta, "category"),
	}, nil
}

// metadataString tolerates both backends: chromem stores strings,
// qdrant returns native payload types.
func metadataString(meta map[string]interface{}, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func metadataFloat(meta map[string]interface{}, key string) (float64, bool) {
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

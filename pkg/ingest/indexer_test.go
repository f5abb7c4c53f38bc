package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	lastWS   protocol.Workspace
	txns     []finance.Transaction
	stmt     *finance.Statement
	clearErr error
	indexErr error
}

func (f *fakeStore) Clear(ctx context.Context, sessionID string, docType protocol.DocumentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("clear:%s:%s", sessionID, docType))
	return f.clearErr
}

func (f *fakeStore) IndexTransactions(ctx context.Context, ws protocol.Workspace, txns []finance.Transaction) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("index:%s:%s", ws.SessionID, ws.DocumentType))
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.lastWS = ws
	f.txns = txns
	return len(txns), nil
}

func (f *fakeStore) IndexFinancialData(ctx context.Context, ws protocol.Workspace, stmt *finance.Statement) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("index:%s:%s", ws.SessionID, ws.DocumentType))
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.lastWS = ws
	f.stmt = stmt
	return len(stmt.Flatten()), nil
}

func (f *fakeStore) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) indexed() ([]finance.Transaction, protocol.Workspace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txns, f.lastWS
}

func transactionsWS() protocol.Workspace {
	return protocol.Workspace{
		SessionID:    "sess-1",
		UploadID:     "upload-1",
		DocumentType: protocol.DocumentTypeTransactions,
	}
}

func financialWS() protocol.Workspace {
	return protocol.Workspace{
		SessionID:    "sess-1",
		UploadID:     "upload-2",
		DocumentType: protocol.DocumentTypeFinancial,
	}
}

func sampleTxns() []finance.Transaction {
	return []finance.Transaction{{
		Date:        day(2024, time.January, 10),
		Description: "GOSI Monthly",
		Amount:      19000,
		Type:        finance.Debit,
	}}
}

func TestIndexerClearsBeforeIndexing(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	count, err := ix.IndexTransactions(context.Background(), transactionsWS(), sampleTxns())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"clear:sess-1:transactions", "index:sess-1:transactions"}, st.callLog())

	txns, _ := st.indexed()
	require.Len(t, txns, 1)
	assert.Equal(t, -19000.0, txns[0].Amount, "records are normalized before indexing")
}

func TestIndexerClearScopedToDocumentType(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	stmt, err := ParseStatement([]byte(`{
		"periods": {"current": "2024", "prior": "2023"},
		"ratios": {"current_ratio": {"current": 2.5, "prior": 2.25}}
	}`))
	require.NoError(t, err)

	_, err = ix.IndexStatement(context.Background(), financialWS(), stmt)
	require.NoError(t, err)
	assert.Equal(t, []string{"clear:sess-1:financial", "index:sess-1:financial"}, st.callLog(),
		"a financial upload must not clear the transactions workspace")
}

func TestIndexerClearFailureStopsIndexing(t *testing.T) {
	st := &fakeStore{clearErr: protocol.StoreUnavailable(fmt.Errorf("backend down"))}
	ix := NewIndexer(st, nil)

	_, err := ix.IndexTransactions(context.Background(), transactionsWS(), sampleTxns())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeStoreUnavailable, protocol.CodeOf(err))
	assert.Equal(t, []string{"clear:sess-1:transactions"}, st.callLog())
}

func TestIndexerRejectsWrongDocumentType(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	_, err := ix.IndexTransactions(context.Background(), financialWS(), sampleTxns())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInvalidUpload, protocol.CodeOf(err))
	assert.Empty(t, st.callLog())
}

func TestIndexerRejectsIncompleteWorkspace(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	ws := transactionsWS()
	ws.UploadID = ""
	_, err := ix.IndexTransactions(context.Background(), ws, sampleTxns())
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInvalidUpload, protocol.CodeOf(err))
	assert.Empty(t, st.callLog())
}

func TestIngestFileCSV(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	csvBody := "date,description,amount,type\n2024-01-10,GOSI Monthly,19000,debit\n"
	count, err := ix.IngestFile(context.Background(), transactionsWS(), "sess-1_transactions.csv", strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	txns, ws := st.indexed()
	require.Len(t, txns, 1)
	assert.Equal(t, -19000.0, txns[0].Amount)
	assert.Equal(t, "upload-1", ws.UploadID)
}

func TestIngestFileStatementJSON(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	body := `{
		"periods": {"current": "2024", "prior": "2023"},
		"ratios": {"current_ratio": {"current": 2.5, "prior": 2.25}}
	}`
	count, err := ix.IngestFile(context.Background(), financialWS(), "sess-1_financial.json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NotNil(t, st.stmt)
	assert.Equal(t, 2.5, st.stmt.Ratios["current_ratio"].Current)
}

func TestIngestFileFinancialRequiresJSON(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	_, err := ix.IngestFile(context.Background(), financialWS(), "books.xlsx", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInvalidUpload, protocol.CodeOf(err))
	assert.Empty(t, st.callLog())
}

func TestIngestFileUnsupportedExtension(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, nil)

	_, err := ix.IngestFile(context.Background(), transactionsWS(), "notes.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInvalidUpload, protocol.CodeOf(err))
}

func TestIngestFileSizeCap(t *testing.T) {
	st := &fakeStore{}
	ix := NewIndexer(st, &config.IngestConfig{MaxFileMB: 1})

	oversized := bytes.NewReader(make([]byte, (1<<20)+1))
	_, err := ix.IngestFile(context.Background(), transactionsWS(), "big_transactions.csv", oversized)
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInvalidUpload, protocol.CodeOf(err))
	assert.Contains(t, err.Error(), "1 MB")
	assert.Empty(t, st.callLog())
}

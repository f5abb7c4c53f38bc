package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/protocol"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(&config.AuditConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, l)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func (l *Log) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, l.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestOpenDisabledReturnsNil(t *testing.T) {
	l, err := Open(&config.AuditConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = Open(nil)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestNilLogIsSafe(t *testing.T) {
	var l *Log
	l.RecordUpload(context.Background(), UploadRecord{SessionID: "sess-1"})
	l.RecordInsightRun(context.Background(), InsightRunRecord{SessionID: "sess-1"})
	l.RecordChatQuery(context.Background(), ChatQueryRecord{SessionID: "sess-1"})
	assert.NoError(t, l.Close())
}

func TestRecordUpload(t *testing.T) {
	l := openTestLog(t)

	l.RecordUpload(context.Background(), UploadRecord{
		SessionID:    "sess-1",
		UploadID:     "upload-1",
		DocumentType: protocol.DocumentTypeTransactions,
		Documents:    4,
		Duration:     1500 * time.Millisecond,
	})

	var (
		docType    string
		documents  int
		durationMS int64
		errorCode  string
	)
	err := l.db.QueryRow(
		`SELECT document_type, documents, duration_ms, error_code FROM uploads WHERE session_id = ?`,
		"sess-1",
	).Scan(&docType, &documents, &durationMS, &errorCode)
	require.NoError(t, err)

	assert.Equal(t, "transactions", docType)
	assert.Equal(t, 4, documents)
	assert.Equal(t, int64(1500), durationMS)
	assert.Empty(t, errorCode, "successful uploads carry no error code")
}

func TestRecordInsightRunWithFailure(t *testing.T) {
	l := openTestLog(t)

	l.RecordInsightRun(context.Background(), InsightRunRecord{
		SessionID:    "sess-1",
		UploadID:     "upload-1",
		DocumentType: protocol.DocumentTypeFinancial,
		Agents:       6,
		Failed:       6,
		Duration:     2 * time.Second,
		ErrorCode:    protocol.CodeLLMUnavailable,
	})

	var failed int
	var errorCode string
	err := l.db.QueryRow(`SELECT failed, error_code FROM insight_runs WHERE session_id = ?`, "sess-1").
		Scan(&failed, &errorCode)
	require.NoError(t, err)
	assert.Equal(t, 6, failed)
	assert.Equal(t, "llm_unavailable", errorCode)
}

func TestRecordChatQueryKeepsNoContent(t *testing.T) {
	l := openTestLog(t)

	l.RecordChatQuery(context.Background(), ChatQueryRecord{
		SessionID:     "sess-1",
		UploadID:      "upload-1",
		DocumentType:  protocol.DocumentTypeTransactions,
		QueryType:     protocol.QueryExpense,
		AgentCategory: protocol.CategoryExpense,
		Retrieved:     3,
		Duration:      800 * time.Millisecond,
	})

	rows, err := l.db.Query(`SELECT * FROM chat_queries`)
	require.NoError(t, err)
	defer rows.Close()

	columns, err := rows.Columns()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"id", "session_id", "upload_id", "document_type", "query_type",
		"agent_category", "retrieved", "duration_ms", "error_code", "created_at",
	}, columns, "the schema has no column that could hold query text or amounts")

	assert.Equal(t, 1, l.countRows(t, "chat_queries"))
}

func TestRecordsAccumulate(t *testing.T) {
	l := openTestLog(t)

	for i := 0; i < 3; i++ {
		l.RecordUpload(context.Background(), UploadRecord{
			SessionID:    "sess-1",
			UploadID:     "upload-1",
			DocumentType: protocol.DocumentTypeTransactions,
			Documents:    1,
		})
	}
	assert.Equal(t, 3, l.countRows(t, "uploads"))
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	cfg := &config.AuditConfig{Enabled: true, Path: path}

	l, err := Open(cfg)
	require.NoError(t, err)
	l.RecordUpload(context.Background(), UploadRecord{
		SessionID:    "sess-1",
		UploadID:     "upload-1",
		DocumentType: protocol.DocumentTypeTransactions,
		Documents:    2,
	})
	require.NoError(t, l.Close())

	l, err = Open(cfg)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, 1, l.countRows(t, "uploads"))
}

// Package audit keeps local usage bookkeeping in sqlite: which uploads,
// insight runs, and chat queries happened, with counts, durations, and
// error codes. Financial content never lands here: no descriptions, no
// amounts, no query text, no model output. Writes are best-effort; an
// audit failure is logged at warn and never fails the request it
// describes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/protocol"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS uploads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    upload_id VARCHAR(255) NOT NULL,
    document_type VARCHAR(32) NOT NULL,
    documents INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error_code VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uploads_session ON uploads(session_id);

CREATE TABLE IF NOT EXISTS insight_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    upload_id VARCHAR(255) NOT NULL,
    document_type VARCHAR(32) NOT NULL,
    agents INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error_code VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_insight_runs_session ON insight_runs(session_id);

CREATE TABLE IF NOT EXISTS chat_queries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    upload_id VARCHAR(255) NOT NULL,
    document_type VARCHAR(32) NOT NULL,
    query_type VARCHAR(64) NOT NULL DEFAULT '',
    agent_category VARCHAR(64) NOT NULL DEFAULT '',
    retrieved INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error_code VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_queries_session ON chat_queries(session_id);
`

// Log is the sqlite audit writer. A nil Log is valid and records
// nothing, so callers never branch on whether auditing is enabled.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database. Returns nil when auditing
// is disabled.
func Open(cfg *config.AuditConfig) (*Log, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// UploadRecord describes one upload attempt.
type UploadRecord struct {
	SessionID    string
	UploadID     string
	DocumentType protocol.DocumentType
	Documents    int
	Duration     time.Duration
	ErrorCode    protocol.Code
}

// InsightRunRecord describes one insights run.
type InsightRunRecord struct {
	SessionID    string
	UploadID     string
	DocumentType protocol.DocumentType
	Agents       int
	Failed       int
	Duration     time.Duration
	ErrorCode    protocol.Code
}

// ChatQueryRecord describes one chat query. The query text itself is
// deliberately absent.
type ChatQueryRecord struct {
	SessionID     string
	UploadID      string
	DocumentType  protocol.DocumentType
	QueryType     protocol.QueryType
	AgentCategory protocol.AgentCategory
	Retrieved     int
	Duration      time.Duration
	ErrorCode     protocol.Code
}

// RecordUpload writes an upload row.
func (l *Log) RecordUpload(ctx context.Context, rec UploadRecord) {
	l.exec(ctx, "uploads",
		`INSERT INTO uploads (session_id, upload_id, document_type, documents, duration_ms, error_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UploadID, string(rec.DocumentType),
		rec.Documents, rec.Duration.Milliseconds(), string(rec.ErrorCode), time.Now().UTC())
}

// RecordInsightRun writes an insight run row.
func (l *Log) RecordInsightRun(ctx context.Context, rec InsightRunRecord) {
	l.exec(ctx, "insight_runs",
		`INSERT INTO insight_runs (session_id, upload_id, document_type, agents, failed, duration_ms, error_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UploadID, string(rec.DocumentType),
		rec.Agents, rec.Failed, rec.Duration.Milliseconds(), string(rec.ErrorCode), time.Now().UTC())
}

// RecordChatQuery writes a chat query row.
func (l *Log) RecordChatQuery(ctx context.Context, rec ChatQueryRecord) {
	l.exec(ctx, "chat_queries",
		`INSERT INTO chat_queries (session_id, upload_id, document_type, query_type, agent_category, retrieved, duration_ms, error_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UploadID, string(rec.DocumentType),
		string(rec.QueryType), string(rec.AgentCategory),
		rec.Retrieved, rec.Duration.Milliseconds(), string(rec.ErrorCode), time.Now().UTC())
}

func (l *Log) exec(ctx context.Context, table, query string, args ...interface{}) {
	if l == nil || l.db == nil {
		return
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		slog.Warn("Audit write failed", "table", table, "error", err)
	}
}

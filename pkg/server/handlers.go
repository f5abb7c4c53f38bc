package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mizanhq/mizan/pkg/audit"
	"github.com/mizanhq/mizan/pkg/auth"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// maxJSONBody bounds JSON request bodies. File uploads are capped
// separately by the ingester.
const maxJSONBody = 1 << 20

type uploadResponse struct {
	UploadID string `json:"upload_id"`
	Count    int    `json:"count"`
}

type verifyResponse struct {
	Ingested bool `json:"ingested"`
}

type insightsRequest struct {
	UploadID     string                `json:"upload_id"`
	DocumentType protocol.DocumentType `json:"document_type"`
}

type chatRequest struct {
	UploadID     string                `json:"upload_id"`
	DocumentType protocol.DocumentType `json:"document_type"`
	Query        string                `json:"query"`
}

type chatResponse struct {
	Response  string                 `json:"response"`
	AgentUsed protocol.AgentCategory `json:"agent_used"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type componentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type healthResponse struct {
	Status string           `json:"status"`
	Store  componentHealth  `json:"store"`
	Model  *componentHealth `json:"model,omitempty"`
}

// handleUpload ingests one multipart file into a fresh workspace. The
// session's cached insights for the document type are invalidated: the
// replaced workspace must not answer from stale results.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, protocol.InvalidUpload("malformed multipart body: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	docType := protocol.DocumentType(r.FormValue("document_type"))
	if !docType.Valid() {
		writeError(w, protocol.InvalidUpload("unknown document type %q", string(docType)))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, protocol.InvalidUpload("multipart form carries no file field"))
		return
	}
	defer file.Close()

	ws := protocol.Workspace{
		SessionID:    sess.ID,
		UploadID:     uuid.NewString(),
		DocumentType: docType,
	}

	start := time.Now()
	count, err := s.ingester.IngestFile(r.Context(), ws, header.Filename, file)
	s.audit.RecordUpload(r.Context(), audit.UploadRecord{
		SessionID:    ws.SessionID,
		UploadID:     ws.UploadID,
		DocumentType: ws.DocumentType,
		Documents:    count,
		Duration:     time.Since(start),
		ErrorCode:    protocol.CodeOf(err),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.orch.InvalidateCache(sess.ID, docType)

	writeJSON(w, http.StatusOK, uploadResponse{UploadID: ws.UploadID, Count: count})
}

func (s *Server) handleVerifyUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	uploadID := chi.URLParam(r, "id")
	ingested, err := s.store.VerifyUpload(r.Context(), sess.ID, uploadID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Ingested: ingested})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req insightsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ws := protocol.Workspace{
		SessionID:    sess.ID,
		UploadID:     req.UploadID,
		DocumentType: req.DocumentType,
	}

	start := time.Now()
	res, err := s.orch.GenerateInsights(r.Context(), ws)

	rec := audit.InsightRunRecord{
		SessionID:    ws.SessionID,
		UploadID:     ws.UploadID,
		DocumentType: ws.DocumentType,
		Duration:     time.Since(start),
		ErrorCode:    protocol.CodeOf(err),
	}
	if res != nil {
		rec.Agents = len(res.Results)
		for _, slot := range res.Results {
			if slot.Failed() {
				rec.Failed++
			}
		}
	}
	s.audit.RecordInsightRun(r.Context(), rec)

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, protocol.InvalidQuery("query must not be empty"))
		return
	}

	ws := protocol.Workspace{
		SessionID:    sess.ID,
		UploadID:     req.UploadID,
		DocumentType: req.DocumentType,
	}

	start := time.Now()
	ans, err := s.orch.ProcessChatQuery(r.Context(), ws, req.Query)

	rec := audit.ChatQueryRecord{
		SessionID:    ws.SessionID,
		UploadID:     ws.UploadID,
		DocumentType: ws.DocumentType,
		Duration:     time.Since(start),
		ErrorCode:    protocol.CodeOf(err),
	}
	if ans != nil {
		rec.QueryType = ans.Intent.QueryType
		rec.AgentCategory = ans.Result.Category
		rec.Retrieved = ans.Retrieved
	}
	s.audit.RecordChatQuery(r.Context(), rec)

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  ans.Result.FinalAnswer,
		AgentUsed: ans.Result.Category,
		Metadata: map[string]interface{}{
			"query_type":          ans.Intent.QueryType,
			"confidence":          ans.Intent.Confidence,
			"retrieved_documents": ans.Retrieved,
			"used_cache":          ans.Result.UsedCache,
		},
	})
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.orch.CacheStatus(sess.ID))
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var docType protocol.DocumentType
	if raw := r.URL.Query().Get("document_type"); raw != "" {
		docType = protocol.DocumentType(raw)
		if !docType.Valid() {
			writeError(w, protocol.Errorf(protocol.CodeInvalidQuery, "unknown document type %q", raw))
			return
		}
	}

	s.orch.InvalidateCache(sess.ID, docType)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth probes the store and, when wired, the model runtime.
// Degraded components flip the status and the response code so local
// supervisors can restart on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := healthResponse{
		Status: "ok",
		Store:  componentHealth{Name: s.store.Backend(), Status: "ok"},
	}
	if err := s.store.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.Store.Status = "unavailable"
	}

	if s.runtime != nil {
		model := componentHealth{Name: s.runtime.ModelName(), Status: "ok"}
		if err := s.runtime.Ping(ctx); err != nil {
			health.Status = "degraded"
			model.Status = "unavailable"
		}
		health.Model = &model
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// session reads the authenticated session the middleware installed.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess, ok := auth.FromContext(r.Context())
	if !ok || sess.ID == "" {
		writeError(w, protocol.Unauthorized("request carries no session"))
		return auth.Session{}, false
	}
	return sess, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, protocol.InvalidQuery("request body is not valid JSON"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError serializes the protocol envelope with its mapped HTTP
// status. Untyped errors reaching here are a bug; they surface as an
// opaque 500 so clients always parse one shape.
func writeError(w http.ResponseWriter, err error) {
	perr, ok := protocol.AsError(err)
	if !ok {
		slog.Error("Untyped error reached the transport", "error", err)
		perr = protocol.NewError(protocol.CodeAgentFailure, "internal error")
	}
	writeJSON(w, statusFor(perr.Code), perr)
}

func statusFor(code protocol.Code) int {
	switch code {
	case protocol.CodeUnauthorized:
		return http.StatusUnauthorized
	case protocol.CodeUploadNotFound:
		return http.StatusNotFound
	case protocol.CodeCacheMissing, protocol.CodeDocumentTypeMismatch:
		return http.StatusConflict
	case protocol.CodeInvalidQuery, protocol.CodeInvalidUpload:
		return http.StatusBadRequest
	case protocol.CodeLLMUnavailable, protocol.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

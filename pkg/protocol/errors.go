package protocol

import (
	"errors"
	"fmt"
)

// Code identifies an error kind with a stable wire value.
type Code string

const (
	CodeUnauthorized         Code = "unauthorized"
	CodeUploadNotFound       Code = "upload_not_found"
	CodeCacheMissing         Code = "cache_missing"
	CodeDocumentTypeMismatch Code = "document_type_mismatch"
	CodeLLMUnavailable       Code = "llm_unavailable"
	CodeStoreUnavailable     Code = "store_unavailable"
	CodeInvalidQuery         Code = "invalid_query"
	CodeInvalidUpload        Code = "invalid_upload"
	CodeAgentFailure         Code = "agent_failure"
)

// Error is the structured error surfaced at every public boundary.
// It serializes to the wire shape {code, message, details?}.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors by code so sentinels compare through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail attaches a key to the serialized details map.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError builds an Error with the given code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an Error that records err as its cause. The cause is
// visible to errors.Is/As but never serialized.
func WrapError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

func Unauthorized(message string) *Error {
	return NewError(CodeUnauthorized, message)
}

func UploadNotFound(uploadID string) *Error {
	return Errorf(CodeUploadNotFound, "no indexed documents for upload %q", uploadID).
		WithDetail("upload_id", uploadID)
}

func CacheMissing(sessionID string, docType DocumentType) *Error {
	return Errorf(CodeCacheMissing, "no cached insights for document type %q; run insights first", docType).
		WithDetail("document_type", string(docType))
}

func DocumentTypeMismatch(requested, cached DocumentType) *Error {
	return Errorf(CodeDocumentTypeMismatch, "cached insights are for %q, not %q", cached, requested).
		WithDetail("requested", string(requested)).
		WithDetail("cached", string(cached))
}

func LLMUnavailable(err error) *Error {
	return WrapError(CodeLLMUnavailable, "local model runtime did not produce a usable response", err)
}

func StoreUnavailable(err error) *Error {
	return WrapError(CodeStoreUnavailable, "semantic store operation failed", err)
}

func InvalidQuery(message string) *Error {
	return NewError(CodeInvalidQuery, message)
}

func InvalidUpload(format string, args ...interface{}) *Error {
	return Errorf(CodeInvalidUpload, format, args...)
}

func AgentFailure(category AgentCategory, err error) *Error {
	return WrapError(CodeAgentFailure, fmt.Sprintf("agent %q failed", category), err).
		WithDetail("agent_category", string(category))
}

// AsError unwraps err to a *Error if one is in its chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf reports the code carried by err, or "" for untyped errors.
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

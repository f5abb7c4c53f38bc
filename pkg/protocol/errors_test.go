package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWireShape(t *testing.T) {
	e := UploadNotFound("u-123")

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))

	assert.Equal(t, "upload_not_found", wire["code"])
	assert.NotEmpty(t, wire["message"])
	details, ok := wire["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u-123", details["upload_id"])
}

func TestErrorCauseNotSerialized(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:11434: connection refused")
	e := LLMUnavailable(cause)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "connection refused")

	// The cause stays reachable for logs and errors.Is checks.
	assert.ErrorIs(t, e, cause)
}

func TestErrorIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("chat failed: %w", CacheMissing("s-1", DocumentTypeTransactions))

	assert.True(t, errors.Is(wrapped, NewError(CodeCacheMissing, "")))
	assert.False(t, errors.Is(wrapped, NewError(CodeStoreUnavailable, "")))
}

func TestAsErrorThroughWrapping(t *testing.T) {
	inner := StoreUnavailable(errors.New("collection gone"))
	wrapped := fmt.Errorf("retrieval: %w", inner)

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeStoreUnavailable, e.Code)
	assert.Equal(t, CodeStoreUnavailable, CodeOf(wrapped))
}

func TestCodeOfUntypedError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestAgentFailureDetails(t *testing.T) {
	e := AgentFailure(CategoryFee, errors.New("timeout"))
	assert.Equal(t, CodeAgentFailure, e.Code)
	assert.Equal(t, "fee", e.Details["agent_category"])
}

func TestDocumentTypeMismatchDetails(t *testing.T) {
	e := DocumentTypeMismatch(DocumentTypeFinancial, DocumentTypeTransactions)
	assert.Equal(t, "financial", e.Details["requested"])
	assert.Equal(t, "transactions", e.Details["cached"])
}

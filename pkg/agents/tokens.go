package agents

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Token counting uses cl100k_base as an approximation for the local
// models; trimming context a little early is harmless, overflowing the
// model's window is not.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func tokenEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// countTokens measures text; falls back to a characters/4 estimate if
// the encoding data is unavailable.
func countTokens(text string) int {
	enc := tokenEncoding()
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// trimToTokens cuts text to at most maxTokens, marking the cut. Used on
// cached-analysis context before it enters a chat prompt.
func trimToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	enc := tokenEncoding()
	if enc == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return strings.TrimSpace(text[:limit]) + "\n[context truncated]"
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return strings.TrimSpace(enc.Decode(tokens[:maxTokens])) + "\n[context truncated]"
}

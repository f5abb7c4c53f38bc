// Package router is the query understander. It turns a free-text
// question into a structured intent: a query type, extracted filters,
// and the agent that answers. Classification runs on the small router
// model; a deterministic keyword matcher takes over whenever the model
// is unavailable or its output cannot be coerced into valid JSON, so a
// chat request never fails on classifier flakiness.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mizanhq/mizan/pkg/llms"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// Request is one classification input. UploadID is copied verbatim
// onto the produced intent.
type Request struct {
	Query        string
	DocumentType protocol.DocumentType
	UploadID     string
}

// Router classifies queries. Stateless per call.
type Router struct {
	llm           llms.Provider
	maxTokens     int
	minConfidence float64
	now           func() time.Time
}

// New builds a router on the classification model. maxTokens bounds
// the classification call; minConfidence is the routing trust floor,
// below which intents land on the document family's default agent.
// Zero values take the defaults (256 tokens, 0.5).
func New(llm llms.Provider, maxTokens int, minConfidence float64) *Router {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	return &Router{llm: llm, maxTokens: maxTokens, minConfidence: minConfidence, now: time.Now}
}

// Understand turns a query into an intent. The deterministic filter
// extractor always runs over the raw text and its findings take
// precedence over whatever the model produced. An inverted date range
// in the query is an InvalidQuery error, never a silent correction.
func (r *Router) Understand(ctx context.Context, req Request) (*protocol.QueryIntent, error) {
	tracer := observability.GetTracer("mizan.router")
	ctx, span := tracer.Start(ctx, observability.SpanRouterClassify,
		trace.WithAttributes(
			attribute.String(observability.AttrDocumentType, string(req.DocumentType)),
		),
	)
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, protocol.InvalidQuery("query is empty")
	}
	if !req.DocumentType.Valid() {
		return nil, protocol.Errorf(protocol.CodeInvalidQuery, "unknown document type %q", req.DocumentType)
	}
	if req.UploadID == "" {
		return nil, protocol.InvalidQuery("upload_id is required")
	}

	extracted, err := extractFilters(query, r.now())
	if err != nil {
		return nil, err
	}

	intent, usedFallback := r.classify(ctx, query, req.DocumentType)
	span.SetAttributes(
		attribute.Bool(observability.AttrRouterFallback, usedFallback),
		attribute.String(observability.AttrQueryType, string(intent.QueryType)),
	)

	intent.UploadID = req.UploadID
	mergeFilters(&intent.Filters, extracted)
	r.normalizeIntent(intent, query, req.DocumentType)
	return intent, nil
}

// classify runs the model call and the coercion ladder. Any failure
// lands on the keyword matcher at confidence 0.5.
func (r *Router) classify(ctx context.Context, query string, dt protocol.DocumentType) (*protocol.QueryIntent, bool) {
	resp, err := r.llm.Generate(ctx, &llms.Request{
		Prompt:       classifyPrompt(query, dt),
		SystemPrompt: classifySystemPrompt(),
		Think:        false,
		MaxTokens:    r.maxTokens,
		JSONFormat:   true,
	})
	if err != nil {
		slog.Warn("Router model unavailable, classifying by keywords", "error", err)
		return fallbackIntent(query, dt), true
	}

	intent, err := coerceIntent(resp.Text)
	if err != nil {
		slog.Warn("Router output not coercible to JSON, classifying by keywords", "error", err)
		return fallbackIntent(query, dt), true
	}
	if !knownQueryType(intent.QueryType) {
		slog.Warn("Router produced unknown query type, classifying by keywords", "query_type", string(intent.QueryType))
		return fallbackIntent(query, dt), true
	}
	return intent, false
}

// coerceIntent runs the coercion ladder over raw model text: strip
// code fences, take the first balanced JSON object, decode; on failure
// repair and decode again.
func coerceIntent(raw string) (*protocol.QueryIntent, error) {
	candidate := strings.ReplaceAll(raw, "```json", "")
	candidate = strings.ReplaceAll(candidate, "```", "")
	candidate = strings.TrimSpace(candidate)
	if obj := firstJSONObject(candidate); obj != "" {
		candidate = obj
	}

	var intent protocol.QueryIntent
	if err := json.Unmarshal([]byte(candidate), &intent); err == nil {
		return &intent, nil
	}

	repaired, err := jsonrepair.RepairJSON(candidate)
	if err != nil {
		return nil, fmt.Errorf("repair classifier output: %w", err)
	}
	intent = protocol.QueryIntent{}
	if err := json.Unmarshal([]byte(repaired), &intent); err != nil {
		return nil, fmt.Errorf("decode repaired classifier output: %w", err)
	}
	return &intent, nil
}

// firstJSONObject returns the first balanced top-level object in s,
// tracking strings and escapes so braces inside values do not end the
// scan early. Empty when no balanced object exists.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// normalizeIntent applies the invariants the model is not trusted
// with: confidence clamped to [0,1], routing from the table, secondary
// agents restricted to the document family, search terms defaulting to
// the query itself.
func (r *Router) normalizeIntent(intent *protocol.QueryIntent, query string, dt protocol.DocumentType) {
	if math.IsNaN(intent.Confidence) || intent.Confidence < 0 {
		intent.Confidence = 0
	}
	if intent.Confidence > 1 {
		intent.Confidence = 1
	}

	if intent.Confidence < r.minConfidence {
		intent.AgentRouting.Primary = defaultCategory(dt)
	} else {
		intent.AgentRouting.Primary = primaryFor(intent.QueryType, dt)
	}
	intent.AgentRouting.Secondary = sanitizeSecondary(intent.AgentRouting.Secondary, intent.AgentRouting.Primary, dt)

	var terms []string
	for _, t := range intent.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		terms = []string{query}
	}
	intent.SearchTerms = terms
}

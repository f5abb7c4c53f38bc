package observability

const (
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrAgentCategory   = "agent.category"
	AttrAgentMode       = "agent.mode"
	AttrDocumentType    = "document.type"
	AttrStoreBackend    = "store.backend"
	AttrStoreResults    = "store.results"
	AttrErrorType       = "error.type"
	AttrQueryType       = "query.type"
	AttrRouterFallback  = "router.fallback"
	AttrAgentFailures   = "agent.failures"

	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"

	SpanLLMCall        = "llm.call"
	SpanAgentRun       = "agent.run"
	SpanInsightsRun    = "insights.run"
	SpanChatQuery      = "chat.query"
	SpanRouterClassify = "router.classify"
	SpanStoreSearch    = "store.search"
	SpanStoreIndex     = "store.index"
	SpanHTTPRequest    = "http.request"

	DefaultServiceName = "mizan"
)

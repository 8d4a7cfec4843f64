package types

// QueryRequest is the payload accepted by POST /query.
type QueryRequest struct {
	// Required natural-language query.
	Query string `json:"query"`
	// Optional tier override. When set, complexity assessment is bypassed.
	Tier string `json:"tier,omitempty"`
	// Optional model override. When set, both assessment and tier selection
	// are bypassed and the named model must be enabled and running.
	Model string `json:"model,omitempty"`
	// Disable retrieval entirely; the model answers without document context.
	NoRetrieval bool `json:"no_retrieval,omitempty"`
	// Disable the web-search fallback branch of corrective retrieval.
	NoWebFallback bool `json:"no_web_fallback,omitempty"`
	// Maximum tokens to generate; capped by the configured response budget.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// QueryResponse is the result of a routed, context-augmented generation.
type QueryResponse struct {
	QueryID string `json:"query_id"`
	Text    string `json:"text"`
	// Which model served the request and how it was chosen.
	ModelID        string  `json:"model_id"`
	Tier           Tier    `json:"tier"`
	Classification string  `json:"classification"`
	Score          float64 `json:"score"`
	// Retrieval diagnostics.
	ContextChunks    int    `json:"context_chunks"`
	ContextTokens    int    `json:"context_tokens"`
	CorrectiveAction string `json:"corrective_action,omitempty"`
	// Wall-clock duration of the whole pipeline.
	DurationMs int64 `json:"duration_ms"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// ModelStatus summarizes one supervised model process for /status.
type ModelStatus struct {
	ModelID string `json:"model_id"`
	Tier    Tier   `json:"tier"`
	Enabled bool   `json:"enabled"`
	// Lifecycle state: stopped, starting, ready, error.
	State string `json:"state"`
	PID   int    `json:"pid,omitempty"`
	Port  int    `json:"port"`
	// Last health-check round trip in milliseconds.
	HealthLatencyMs int64 `json:"health_latency_ms,omitempty"`
	// Consecutive failed health checks since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
	// Cumulative requests routed to this model.
	Requests uint64 `json:"requests"`
}

// RoutingDecisionRecord is one audit entry from the complexity assessor.
type RoutingDecisionRecord struct {
	Query          string  `json:"query"`
	Tier           Tier    `json:"tier"`
	Classification string  `json:"classification"`
	Score          float64 `json:"score"`
	TimestampUnix  int64   `json:"timestamp_unix"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models          []ModelStatus           `json:"models"`
	IndexedChunks   int                     `json:"indexed_chunks"`
	LastScanUnix    int64                   `json:"last_scan_unix,omitempty"`
	UptimeSeconds   int64                   `json:"uptime_seconds"`
	RecentDecisions []RoutingDecisionRecord `json:"recent_decisions,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

package config

import (
	"fmt"
	"time"
)

// Config holds all tunables for the engine. The core never reads the
// environment; callers load a file (or take Default) and pass the result down.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DocsDir   string `json:"docs_dir" yaml:"docs_dir" toml:"docs_dir"`
	// Path to the llama-server binary used to spawn model processes.
	ServerBin string `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	// Port range reserved for model server processes.
	PortRangeStart int `json:"port_range_start" yaml:"port_range_start" toml:"port_range_start"`
	PortRangeEnd   int `json:"port_range_end" yaml:"port_range_end" toml:"port_range_end"`

	Routing   RoutingConfig   `json:"routing" yaml:"routing" toml:"routing"`
	Budgets   BudgetConfig    `json:"budgets" yaml:"budgets" toml:"budgets"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval" toml:"retrieval"`
	Health    HealthConfig    `json:"health" yaml:"health" toml:"health"`
	Embedder  EmbedderConfig  `json:"embedder" yaml:"embedder" toml:"embedder"`
	Search    SearchConfig    `json:"search" yaml:"search" toml:"search"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`

	// Generation deadline per query in milliseconds.
	QueryTimeoutMs int `json:"query_timeout_ms" yaml:"query_timeout_ms" toml:"query_timeout_ms"`
	// Prompt prefix sent with every generation.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
}

// RoutingConfig holds the tier boundary table. Scores at or below FastMax go
// to the fast tier, at or below BalancedMax to balanced, everything else to
// powerful. Bounds are inclusive so boundary ties resolve to the cheaper tier.
type RoutingConfig struct {
	FastMax     float64 `json:"fast_max" yaml:"fast_max" toml:"fast_max"`
	BalancedMax float64 `json:"balanced_max" yaml:"balanced_max" toml:"balanced_max"`
}

// BudgetConfig partitions the model context window in tokens.
type BudgetConfig struct {
	System   int `json:"system" yaml:"system" toml:"system"`
	Context  int `json:"context" yaml:"context" toml:"context"`
	Response int `json:"response" yaml:"response" toml:"response"`
}

// RetrievalConfig tunes the retriever and the corrective controller.
type RetrievalConfig struct {
	MinRelevance float64 `json:"min_relevance" yaml:"min_relevance" toml:"min_relevance"`
	MaxArtifacts int     `json:"max_artifacts" yaml:"max_artifacts" toml:"max_artifacts"`
	TopK         int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	// Corrective thresholds on the top relevance score: at or above
	// RelevantAbove the result is accepted as-is; below IrrelevantBelow the
	// web fallback runs; in between the query is expanded and retried.
	RelevantAbove   float64 `json:"relevant_above" yaml:"relevant_above" toml:"relevant_above"`
	IrrelevantBelow float64 `json:"irrelevant_below" yaml:"irrelevant_below" toml:"irrelevant_below"`
}

// HealthConfig tunes the per-model health check loops.
type HealthConfig struct {
	IntervalMs int `json:"interval_ms" yaml:"interval_ms" toml:"interval_ms"`
	TimeoutMs  int `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	// Consecutive failed checks before a model transitions to error.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold"`
	// Automatically restart a model that transitioned to error.
	AutoRestart bool `json:"auto_restart" yaml:"auto_restart" toml:"auto_restart"`
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	// "hash" for the deterministic local embedder, "openai" for an
	// OpenAI-compatible embedding server.
	Kind      string `json:"kind" yaml:"kind" toml:"kind"`
	BaseURL   string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey    string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model     string `json:"model" yaml:"model" toml:"model"`
	Dimension int    `json:"dimension" yaml:"dimension" toml:"dimension"`
}

// SearchConfig tunes the web-search fallback.
type SearchConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	MaxResults int  `json:"max_results" yaml:"max_results" toml:"max_results"`
	TimeoutMs  int  `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
}

// LogConfig controls the zerolog setup in cmd.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Default returns the baseline configuration a profile may override.
func Default() Config {
	return Config{
		Addr:           ":8090",
		ModelsDir:      "~/models/llm",
		ServerBin:      "llama-server",
		PortRangeStart: 30000,
		PortRangeEnd:   30063,
		Routing:        RoutingConfig{FastMax: 3.0, BalancedMax: 7.0},
		Budgets:        BudgetConfig{System: 512, Context: 4096, Response: 1024},
		Retrieval: RetrievalConfig{
			MinRelevance:    0.35,
			MaxArtifacts:    8,
			TopK:            24,
			RelevantAbove:   0.7,
			IrrelevantBelow: 0.45,
		},
		Health: HealthConfig{
			IntervalMs:       2000,
			TimeoutMs:        500,
			FailureThreshold: 3,
		},
		Embedder:       EmbedderConfig{Kind: "hash", Dimension: 256},
		Search:         SearchConfig{Enabled: true, MaxResults: 5, TimeoutMs: 8000},
		Log:            LogConfig{Level: "info", Format: "console"},
		QueryTimeoutMs: 120000,
		SystemPrompt:   "You are a helpful assistant. Use the provided context when it is relevant.",
	}
}

func (h HealthConfig) Interval() time.Duration { return time.Duration(h.IntervalMs) * time.Millisecond }
func (h HealthConfig) Timeout() time.Duration  { return time.Duration(h.TimeoutMs) * time.Millisecond }
func (s SearchConfig) Timeout() time.Duration  { return time.Duration(s.TimeoutMs) * time.Millisecond }
func (c Config) QueryTimeout() time.Duration   { return time.Duration(c.QueryTimeoutMs) * time.Millisecond }

// Validate rejects configurations that cannot produce a working engine.
// Failures here are fatal at startup and never retried.
func (c Config) Validate() error {
	if c.PortRangeEnd < c.PortRangeStart {
		return ErrConfiguration(fmt.Sprintf("port range %d-%d is empty", c.PortRangeStart, c.PortRangeEnd))
	}
	if c.Routing.FastMax < 0 || c.Routing.BalancedMax < c.Routing.FastMax {
		return ErrConfiguration(fmt.Sprintf("tier thresholds must satisfy 0 <= fast_max <= balanced_max, got %.2f/%.2f",
			c.Routing.FastMax, c.Routing.BalancedMax))
	}
	if c.Budgets.Context <= 0 || c.Budgets.Response <= 0 {
		return ErrConfiguration("context and response token budgets must be positive")
	}
	if c.Retrieval.MaxArtifacts <= 0 {
		return ErrConfiguration("retrieval.max_artifacts must be positive")
	}
	if c.Retrieval.TopK < c.Retrieval.MaxArtifacts {
		return ErrConfiguration("retrieval.top_k must be at least retrieval.max_artifacts")
	}
	if c.Retrieval.IrrelevantBelow > c.Retrieval.RelevantAbove {
		return ErrConfiguration("retrieval.irrelevant_below must not exceed retrieval.relevant_above")
	}
	if c.Health.FailureThreshold <= 0 {
		return ErrConfiguration("health.failure_threshold must be positive")
	}
	switch c.Embedder.Kind {
	case "hash", "openai":
	default:
		return ErrConfiguration(fmt.Sprintf("unknown embedder kind %q", c.Embedder.Kind))
	}
	return nil
}

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// Generator produces a completion from a serving model. The context carries
// the per-query deadline; implementations must honor cancellation.
type Generator interface {
	Generate(ctx context.Context, model types.Model, prompt string, maxTokens int) (string, error)
}

// completionRequest is the OpenAI-compatible body understood by
// llama-server's /v1/completions endpoint.
type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// HTTPGenerator dispatches completions to the supervised server process
// listening on the model's assigned port.
type HTTPGenerator struct {
	host        string
	temperature float64
	client      *http.Client
	log         zerolog.Logger
}

// NewHTTPGenerator builds a generator targeting host-local server processes.
// Deadlines come from the request context, not a client-level timeout.
func NewHTTPGenerator(host string, temperature float64, log zerolog.Logger) *HTTPGenerator {
	if host == "" {
		host = "127.0.0.1"
	}
	return &HTTPGenerator{
		host:        host,
		temperature: temperature,
		client:      &http.Client{},
		log:         log.With().Str("component", "generator").Logger(),
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, model types.Model, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/v1/completions", g.host, model.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", context.DeadlineExceeded
		}
		return "", fmt.Errorf("dispatch to %s: %w", model.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.log.Warn().
			Str("model_id", model.ID).
			Int("status", resp.StatusCode).
			Msg("completion request rejected")
		return "", fmt.Errorf("model %s returned status %d: %s", model.ID, resp.StatusCode, bytes.TrimSpace(payload))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion from %s: %w", model.ID, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", model.ID)
	}
	return out.Choices[0].Text, nil
}

// Package orchestrator runs the query pipeline: assess complexity, pick a
// model, retrieve context, assemble a prompt and dispatch generation. It is
// the seam between the HTTP surface and the routing, retrieval and
// supervision internals.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/internal/config"
	"github.com/dlorp/synapse-engine-sub002/internal/rag"
	"github.com/dlorp/synapse-engine-sub002/internal/registry"
	"github.com/dlorp/synapse-engine-sub002/internal/routing"
	"github.com/dlorp/synapse-engine-sub002/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub002/internal/telemetry"
	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// ContextSource supplies corrective retrieval. Satisfied by rag.Controller.
type ContextSource interface {
	Retrieve(ctx context.Context, query string, opts rag.RetrieveOptions) (rag.RetrievalResult, rag.Action, error)
}

// ModelPicker selects a serving model for a tier. Satisfied by
// selector.Selector.
type ModelPicker interface {
	Select(tier types.Tier) (types.Model, error)
	Counts() map[string]uint64
}

// Supervision is the slice of the process supervisor the engine needs.
type Supervision interface {
	Start(modelID string) error
	Stop(modelID string) error
	Restart(modelID string) error
	IsRunning(modelID string) bool
	Info(modelID string) supervisor.ProcessInfo
}

// Deps collects the engine's collaborators. Retrieval and Index may be nil
// when no documents are indexed; Tracker defaults to a no-op.
type Deps struct {
	Registry   *registry.Registry
	Supervisor Supervision
	Picker     ModelPicker
	Assessor   *routing.Assessor
	Decisions  *routing.DecisionLog
	Retrieval  ContextSource
	Generator  Generator
	Counter    tokens.Counter
	Tracker    telemetry.Tracker
	Index      *rag.Index
}

// Engine coordinates one query through the full pipeline and exposes the
// model management operations behind the HTTP API.
type Engine struct {
	cfg       config.Config
	log       zerolog.Logger
	reg       *registry.Registry
	sup       Supervision
	picker    ModelPicker
	assessor  *routing.Assessor
	decisions *routing.DecisionLog
	retrieval ContextSource
	generator Generator
	counter   tokens.Counter
	tracker   telemetry.Tracker
	index     *rag.Index
	started   time.Time
}

// New wires the engine. cfg must already be validated.
func New(cfg config.Config, d Deps, log zerolog.Logger) *Engine {
	if d.Tracker == nil {
		d.Tracker = telemetry.NopTracker{}
	}
	return &Engine{
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
		reg:       d.Registry,
		sup:       d.Supervisor,
		picker:    d.Picker,
		assessor:  d.Assessor,
		decisions: d.Decisions,
		retrieval: d.Retrieval,
		generator: d.Generator,
		counter:   d.Counter,
		tracker:   d.Tracker,
		index:     d.Index,
		started:   time.Now(),
	}
}

// forcedClassification marks responses where the caller bypassed assessment.
const forcedClassification = "FORCED"

// ProcessQuery runs the pipeline stages in order. Retrieval failure degrades
// to an uncontexted generation; every other stage failure aborts the query.
func (e *Engine) ProcessQuery(ctx context.Context, req types.QueryRequest) (types.QueryResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return types.QueryResponse{}, ErrValidation("query must not be empty")
	}
	if req.Tier != "" && req.Model != "" {
		return types.QueryResponse{}, ErrValidation("tier and model overrides are mutually exclusive")
	}

	queryID := uuid.NewString()
	start := time.Now()
	log := e.log.With().Str("query_id", queryID).Logger()
	resp := types.QueryResponse{QueryID: queryID}

	// Routing: assess unless the caller forced a tier or a model.
	var model types.Model
	routeStart := time.Now()
	e.tracker.StageStarted(queryID, "route", nil)
	switch {
	case req.Model != "":
		m, ok := e.reg.Get(req.Model)
		if !ok {
			return resp, ErrValidation(fmt.Sprintf("unknown model id %q", req.Model))
		}
		if !m.Enabled {
			return resp, ErrModelUnavailable(m.ID, "model is disabled")
		}
		if !e.sup.IsRunning(m.ID) {
			return resp, ErrModelUnavailable(m.ID, "process is not ready")
		}
		model = m
		resp.Tier = m.Tier
		resp.Classification = forcedClassification
	case req.Tier != "":
		tier, ok := types.ParseTier(req.Tier)
		if !ok {
			return resp, ErrValidation(fmt.Sprintf("unknown tier %q", req.Tier))
		}
		resp.Tier = tier
		resp.Classification = forcedClassification
	default:
		a := e.assessor.Assess(query)
		resp.Tier = a.Tier
		resp.Classification = string(a.Classification)
		resp.Score = a.Score
	}
	e.tracker.StageCompleted(queryID, "route", map[string]any{
		"tier": string(resp.Tier), "classification": resp.Classification,
	}, time.Since(routeStart))

	if model.ID == "" {
		selStart := time.Now()
		e.tracker.StageStarted(queryID, "select", map[string]any{"tier": string(resp.Tier)})
		m, err := e.picker.Select(resp.Tier)
		if err != nil {
			e.tracker.StageFailed(queryID, "select", err, time.Since(selStart))
			return resp, err
		}
		model = m
		e.tracker.StageCompleted(queryID, "select", map[string]any{"model": m.ID}, time.Since(selStart))
	}
	resp.ModelID = model.ID

	// Retrieval: best effort. A broken index must not take queries down.
	var chunks []rag.DocumentChunk
	if !req.NoRetrieval && e.retrieval != nil {
		retStart := time.Now()
		e.tracker.StageStarted(queryID, "retrieve", nil)
		res, action, err := e.retrieval.Retrieve(ctx, query, rag.RetrieveOptions{
			TokenBudget:   e.cfg.Budgets.Context,
			MaxArtifacts:  e.cfg.Retrieval.MaxArtifacts,
			NoWebFallback: req.NoWebFallback,
		})
		if err != nil {
			log.Warn().Err(err).Msg("retrieval failed, answering without context")
			e.tracker.StageFailed(queryID, "retrieve", err, time.Since(retStart))
		} else {
			chunks = res.Artifacts
			resp.ContextChunks = len(res.Artifacts)
			resp.ContextTokens = res.TokensUsed
			if action != rag.ActionNone {
				resp.CorrectiveAction = string(action)
			}
			e.tracker.StageCompleted(queryID, "retrieve", map[string]any{
				"chunks": len(chunks), "action": string(action),
			}, time.Since(retStart))
		}
	}

	prompt := assemblePrompt(e.counter, e.cfg.Budgets, e.cfg.SystemPrompt, chunks, query)

	maxTokens := e.cfg.Budgets.Response
	if req.MaxTokens > 0 && req.MaxTokens < maxTokens {
		maxTokens = req.MaxTokens
	}

	genStart := time.Now()
	e.tracker.StageStarted(queryID, "generate", map[string]any{"model": model.ID})
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout())
	defer cancel()
	text, err := e.generator.Generate(genCtx, model, prompt, maxTokens)
	if err != nil {
		e.tracker.StageFailed(queryID, "generate", err, time.Since(genStart))
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return resp, ErrQueryTimeout(model.ID, e.cfg.QueryTimeout())
		}
		return resp, fmt.Errorf("generate with %s: %w", model.ID, err)
	}
	e.tracker.StageCompleted(queryID, "generate", map[string]any{"model": model.ID}, time.Since(genStart))

	resp.Text = text
	resp.DurationMs = time.Since(start).Milliseconds()
	log.Info().
		Str("model", model.ID).
		Str("tier", string(resp.Tier)).
		Int("context_chunks", resp.ContextChunks).
		Int64("duration_ms", resp.DurationMs).
		Msg("query completed")
	return resp, nil
}

// ListModels returns every discovered model in registry order.
func (e *Engine) ListModels() []types.Model { return e.reg.List() }

// Status reports the runtime view used by GET /status.
func (e *Engine) Status() types.StatusResponse {
	counts := e.picker.Counts()
	models := e.reg.List()
	out := types.StatusResponse{
		Models:        make([]types.ModelStatus, 0, len(models)),
		UptimeSeconds: int64(time.Since(e.started).Seconds()),
	}
	for _, m := range models {
		info := e.sup.Info(m.ID)
		out.Models = append(out.Models, types.ModelStatus{
			ModelID:             m.ID,
			Tier:                m.Tier,
			Enabled:             m.Enabled,
			State:               string(info.State),
			PID:                 info.PID,
			Port:                m.Port,
			HealthLatencyMs:     info.HealthLatency.Milliseconds(),
			ConsecutiveFailures: info.ConsecutiveFailures,
			Requests:            counts[m.ID],
		})
	}
	if e.index != nil {
		out.IndexedChunks = e.index.Size()
	}
	if last := e.reg.LastScan(); !last.IsZero() {
		out.LastScanUnix = last.Unix()
	}
	if e.decisions != nil {
		out.RecentDecisions = e.decisions.Recent(10)
	}
	return out
}

// StartModel starts the named model's server process.
func (e *Engine) StartModel(modelID string) error {
	if _, ok := e.reg.Get(modelID); !ok {
		return ErrValidation(fmt.Sprintf("unknown model id %q", modelID))
	}
	return e.sup.Start(modelID)
}

// StopModel stops the named model's server process. Stopping a stopped model
// succeeds.
func (e *Engine) StopModel(modelID string) error {
	if _, ok := e.reg.Get(modelID); !ok {
		return ErrValidation(fmt.Sprintf("unknown model id %q", modelID))
	}
	return e.sup.Stop(modelID)
}

// RestartModel bounces the named model's server process.
func (e *Engine) RestartModel(modelID string) error {
	if _, ok := e.reg.Get(modelID); !ok {
		return ErrValidation(fmt.Sprintf("unknown model id %q", modelID))
	}
	return e.sup.Restart(modelID)
}

// Ready reports whether at least one enabled model can serve.
func (e *Engine) Ready() bool {
	for _, m := range e.reg.List() {
		if m.Enabled && e.sup.IsRunning(m.ID) {
			return true
		}
	}
	return false
}

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/internal/config"
	"github.com/dlorp/synapse-engine-sub002/internal/rag"
	"github.com/dlorp/synapse-engine-sub002/internal/registry"
	"github.com/dlorp/synapse-engine-sub002/internal/routing"
	"github.com/dlorp/synapse-engine-sub002/internal/selector"
	"github.com/dlorp/synapse-engine-sub002/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub002/internal/telemetry"
	"github.com/dlorp/synapse-engine-sub002/internal/tokens"
	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

func testRegistry(t *testing.T, filenames ...string) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	for _, name := range filenames {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	reg := registry.New(registry.Thresholds{FastMax: 3, BalancedMax: 7}, 30000, 30063)
	if err := reg.ScanDir(dir); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return reg
}

type fakeSup struct {
	running   map[string]bool
	started   []string
	stopped   []string
	restarted []string
}

func (f *fakeSup) Start(id string) error   { f.started = append(f.started, id); return nil }
func (f *fakeSup) Stop(id string) error    { f.stopped = append(f.stopped, id); return nil }
func (f *fakeSup) Restart(id string) error { f.restarted = append(f.restarted, id); return nil }
func (f *fakeSup) IsRunning(id string) bool { return f.running[id] }
func (f *fakeSup) Info(id string) supervisor.ProcessInfo {
	if f.running[id] {
		return supervisor.ProcessInfo{State: supervisor.StateReady, PID: 42}
	}
	return supervisor.ProcessInfo{State: supervisor.StateStopped}
}

type fakePicker struct {
	model   types.Model
	err     error
	gotTier types.Tier
	calls   int
}

func (f *fakePicker) Select(tier types.Tier) (types.Model, error) {
	f.calls++
	f.gotTier = tier
	return f.model, f.err
}
func (f *fakePicker) Counts() map[string]uint64 { return map[string]uint64{f.model.ID: uint64(f.calls)} }

type fakeRetrieval struct {
	res     rag.RetrievalResult
	action  rag.Action
	err     error
	calls   int
	gotOpts rag.RetrieveOptions
}

func (f *fakeRetrieval) Retrieve(_ context.Context, _ string, opts rag.RetrieveOptions) (rag.RetrievalResult, rag.Action, error) {
	f.calls++
	f.gotOpts = opts
	return f.res, f.action, f.err
}

type fakeGen struct {
	text      string
	err       error
	block     bool
	gotModel  types.Model
	gotPrompt string
	gotMax    int
}

func (g *fakeGen) Generate(ctx context.Context, m types.Model, prompt string, maxTokens int) (string, error) {
	g.gotModel = m
	g.gotPrompt = prompt
	g.gotMax = maxTokens
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.text, g.err
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SystemPrompt = "Answer using the context."
	return cfg
}

func testEngine(t *testing.T, cfg config.Config, reg *registry.Registry, sup *fakeSup, picker *fakePicker, ret ContextSource, gen Generator) *Engine {
	t.Helper()
	decisions := routing.NewDecisionLog(16)
	deps := Deps{
		Registry:   reg,
		Supervisor: sup,
		Picker:     picker,
		Assessor:   routing.NewAssessor(routing.Thresholds{FastMax: cfg.Routing.FastMax, BalancedMax: cfg.Routing.BalancedMax}, decisions),
		Decisions:  decisions,
		Generator:  gen,
		Counter:    tokens.NewHeuristicCounter(),
		Tracker:    telemetry.NewMemoryTracker(),
	}
	if ret != nil {
		deps.Retrieval = ret
	}
	return New(cfg, deps, zerolog.Nop())
}

func TestProcessQueryFullPipeline(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	picker := &fakePicker{model: model}
	ret := &fakeRetrieval{
		res: rag.RetrievalResult{
			Artifacts: []rag.DocumentChunk{
				{FilePath: "guide.md", Content: "relevant context text"},
			},
			TokensUsed: 6,
			TopScores:  []float64{0.8},
		},
		action: rag.ActionExpanded,
	}
	gen := &fakeGen{text: "the answer"}
	e := testEngine(t, testConfig(), reg, sup, picker, ret, gen)

	resp, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "What is a mutex?"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Text != "the answer" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.ModelID != model.ID {
		t.Errorf("model = %q, want %q", resp.ModelID, model.ID)
	}
	if resp.Tier != types.TierFast || resp.Classification != "SIMPLE" {
		t.Errorf("routing = %q/%q, want fast/SIMPLE", resp.Tier, resp.Classification)
	}
	if resp.ContextChunks != 1 || resp.ContextTokens != 6 {
		t.Errorf("context diagnostics = %d chunks / %d tokens", resp.ContextChunks, resp.ContextTokens)
	}
	if resp.CorrectiveAction != string(rag.ActionExpanded) {
		t.Errorf("corrective action = %q", resp.CorrectiveAction)
	}
	if resp.QueryID == "" {
		t.Error("missing query id")
	}
	if picker.gotTier != types.TierFast {
		t.Errorf("picker tier = %q", picker.gotTier)
	}
	if !strings.Contains(gen.gotPrompt, "relevant context text") {
		t.Error("prompt missing retrieved context")
	}
	if !strings.Contains(gen.gotPrompt, "What is a mutex?") {
		t.Error("prompt missing user query")
	}
	if gen.gotMax != testConfig().Budgets.Response {
		t.Errorf("max tokens = %d, want response budget", gen.gotMax)
	}
	if ret.gotOpts.TokenBudget != testConfig().Budgets.Context {
		t.Errorf("retrieval budget = %d, want context budget", ret.gotOpts.TokenBudget)
	}
}

func TestProcessQueryEmitsStageEvents(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	decisions := routing.NewDecisionLog(16)
	tracker := telemetry.NewMemoryTracker()
	cfg := testConfig()
	e := New(cfg, Deps{
		Registry:   reg,
		Supervisor: sup,
		Picker:     &fakePicker{model: model},
		Assessor:   routing.NewAssessor(routing.Thresholds{FastMax: cfg.Routing.FastMax, BalancedMax: cfg.Routing.BalancedMax}, decisions),
		Decisions:  decisions,
		Retrieval:  &fakeRetrieval{},
		Generator:  &fakeGen{text: "ok"},
		Counter:    tokens.NewHeuristicCounter(),
		Tracker:    tracker,
	}, zerolog.Nop())

	if _, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is a mutex"}); err != nil {
		t.Fatal(err)
	}

	want := []struct{ stage, status string }{
		{"route", "started"}, {"route", "completed"},
		{"select", "started"}, {"select", "completed"},
		{"retrieve", "started"}, {"retrieve", "completed"},
		{"generate", "started"}, {"generate", "completed"},
	}
	events := tracker.Events()
	if len(events) != len(want) {
		t.Fatalf("recorded %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, w := range want {
		if events[i].Stage != w.stage || events[i].Status != w.status {
			t.Errorf("event %d = %s/%s, want %s/%s", i, events[i].Stage, events[i].Status, w.stage, w.status)
		}
	}
	for _, ev := range events {
		if ev.QueryID != events[0].QueryID {
			t.Fatal("events span multiple query ids")
		}
	}
}

func TestProcessQueryValidation(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	sup := &fakeSup{running: map[string]bool{}}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{}, nil, &fakeGen{})

	cases := []types.QueryRequest{
		{Query: ""},
		{Query: "   "},
		{Query: "hi", Tier: "fast", Model: "alpha-3b-q4_0"},
		{Query: "hi", Tier: "turbo"},
		{Query: "hi", Model: "ghost"},
	}
	for i, req := range cases {
		if _, err := e.ProcessQuery(context.Background(), req); !IsValidation(err) {
			t.Errorf("case %d: err = %v, want validation error", i, err)
		}
	}
}

func TestProcessQueryForcedTierBypassesAssessment(t *testing.T) {
	reg := testRegistry(t, "omega-30b-q4_0.gguf")
	model, _ := reg.Get("omega-30b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	picker := &fakePicker{model: model}
	gen := &fakeGen{text: "ok"}
	e := testEngine(t, testConfig(), reg, sup, picker, nil, gen)

	// A trivially simple query still goes where the caller says.
	resp, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is two plus two", Tier: "powerful"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Tier != types.TierPowerful {
		t.Errorf("tier = %q, want powerful", resp.Tier)
	}
	if resp.Classification != forcedClassification {
		t.Errorf("classification = %q, want %q", resp.Classification, forcedClassification)
	}
	if picker.gotTier != types.TierPowerful {
		t.Errorf("picker tier = %q", picker.gotTier)
	}
}

func TestProcessQueryDirectModel(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf", "beta-3b-q4_0.gguf")
	sup := &fakeSup{running: map[string]bool{"beta-3b-q4_0": true}}
	picker := &fakePicker{}
	gen := &fakeGen{text: "ok"}
	e := testEngine(t, testConfig(), reg, sup, picker, nil, gen)

	resp, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "hi there", Model: "beta-3b-q4_0"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.ModelID != "beta-3b-q4_0" {
		t.Errorf("model = %q", resp.ModelID)
	}
	if picker.calls != 0 {
		t.Error("selector ran despite direct model override")
	}
}

func TestProcessQueryDirectModelUnavailable(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf", "beta-3b-q4_0.gguf")
	if err := reg.SetEnabled("beta-3b-q4_0", false); err != nil {
		t.Fatal(err)
	}
	sup := &fakeSup{running: map[string]bool{}}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{}, nil, &fakeGen{})

	// Disabled model.
	_, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "hi", Model: "beta-3b-q4_0"})
	if !IsModelUnavailable(err) {
		t.Errorf("disabled: err = %v, want model unavailable", err)
	}
	// Enabled but not ready.
	_, err = e.ProcessQuery(context.Background(), types.QueryRequest{Query: "hi", Model: "alpha-3b-q4_0"})
	if !IsModelUnavailable(err) {
		t.Errorf("not ready: err = %v, want model unavailable", err)
	}
}

func TestProcessQuerySelectorErrorPropagates(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	sup := &fakeSup{running: map[string]bool{}}
	picker := &fakePicker{err: selector.ErrNoModelsAvailable(types.TierFast, nil)}
	e := testEngine(t, testConfig(), reg, sup, picker, nil, &fakeGen{})

	_, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is a mutex"})
	if !selector.IsNoModelsAvailable(err) {
		t.Fatalf("err = %v, want NoModelsAvailable passed through", err)
	}
}

func TestProcessQueryRetrievalFailureDegrades(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	ret := &fakeRetrieval{err: context.Canceled}
	gen := &fakeGen{text: "answered without context"}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{model: model}, ret, gen)

	resp, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is a mutex"})
	if err != nil {
		t.Fatalf("retrieval failure must not fail the query: %v", err)
	}
	if resp.ContextChunks != 0 {
		t.Errorf("context chunks = %d, want 0", resp.ContextChunks)
	}
	if resp.Text != "answered without context" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestProcessQueryNoRetrievalFlag(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	ret := &fakeRetrieval{}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{model: model}, ret, &fakeGen{text: "ok"})

	if _, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is a mutex", NoRetrieval: true}); err != nil {
		t.Fatal(err)
	}
	if ret.calls != 0 {
		t.Fatal("retrieval ran despite NoRetrieval")
	}
}

func TestProcessQueryNoWebFallbackPropagates(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	ret := &fakeRetrieval{}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{model: model}, ret, &fakeGen{text: "ok"})

	if _, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is a mutex", NoWebFallback: true}); err != nil {
		t.Fatal(err)
	}
	if !ret.gotOpts.NoWebFallback {
		t.Fatal("NoWebFallback flag not passed to retrieval")
	}
}

func TestProcessQueryTimeout(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	cfg := testConfig()
	cfg.QueryTimeoutMs = 20
	e := testEngine(t, cfg, reg, sup, &fakePicker{model: model}, nil, &fakeGen{block: true})

	_, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "what is a mutex"})
	if !IsQueryTimeout(err) {
		t.Fatalf("err = %v, want query timeout", err)
	}
}

func TestProcessQueryMaxTokensCap(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	model, _ := reg.Get("alpha-3b-q4_0")
	sup := &fakeSup{running: map[string]bool{model.ID: true}}
	gen := &fakeGen{text: "ok"}
	cfg := testConfig()
	e := testEngine(t, cfg, reg, sup, &fakePicker{model: model}, nil, gen)

	if _, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "hi there", MaxTokens: 5}); err != nil {
		t.Fatal(err)
	}
	if gen.gotMax != 5 {
		t.Errorf("max tokens = %d, want caller's 5", gen.gotMax)
	}
	if _, err := e.ProcessQuery(context.Background(), types.QueryRequest{Query: "hi there", MaxTokens: cfg.Budgets.Response * 10}); err != nil {
		t.Fatal(err)
	}
	if gen.gotMax != cfg.Budgets.Response {
		t.Errorf("max tokens = %d, want capped at response budget", gen.gotMax)
	}
}

func TestModelManagementOperations(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf")
	sup := &fakeSup{running: map[string]bool{}}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{}, nil, &fakeGen{})

	if err := e.StartModel("alpha-3b-q4_0"); err != nil {
		t.Fatal(err)
	}
	if err := e.StopModel("alpha-3b-q4_0"); err != nil {
		t.Fatal(err)
	}
	if err := e.RestartModel("alpha-3b-q4_0"); err != nil {
		t.Fatal(err)
	}
	if len(sup.started) != 1 || len(sup.stopped) != 1 || len(sup.restarted) != 1 {
		t.Fatalf("supervisor calls = %v/%v/%v", sup.started, sup.stopped, sup.restarted)
	}
	if err := e.StartModel("ghost"); !IsValidation(err) {
		t.Fatalf("unknown id: err = %v, want validation", err)
	}
}

func TestReadyAndStatus(t *testing.T) {
	reg := testRegistry(t, "alpha-3b-q4_0.gguf", "beta-3b-q4_0.gguf")
	sup := &fakeSup{running: map[string]bool{}}
	e := testEngine(t, testConfig(), reg, sup, &fakePicker{}, nil, &fakeGen{})

	if e.Ready() {
		t.Fatal("ready with no running models")
	}
	sup.running["alpha-3b-q4_0"] = true
	if !e.Ready() {
		t.Fatal("not ready with a running enabled model")
	}

	st := e.Status()
	if len(st.Models) != 2 {
		t.Fatalf("status covers %d models, want 2", len(st.Models))
	}
	for _, m := range st.Models {
		switch m.ModelID {
		case "alpha-3b-q4_0":
			if m.State != string(supervisor.StateReady) {
				t.Errorf("alpha state = %q", m.State)
			}
		case "beta-3b-q4_0":
			if m.State != string(supervisor.StateStopped) {
				t.Errorf("beta state = %q", m.State)
			}
		}
	}
}

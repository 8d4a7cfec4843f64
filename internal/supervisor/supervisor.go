// Package supervisor runs and health-checks one server process per started
// model. Each model gets an independent health-check goroutine; a hung probe
// against one model never delays checks against others.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/internal/registry"
)

// State is the lifecycle state of one supervised model process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Config tunes the supervisor.
type Config struct {
	Host             string
	Interval         time.Duration
	ProbeTimeout     time.Duration
	FailureThreshold int
	AutoRestart      bool
}

// ProcessInfo is a read-only view of one supervised process.
type ProcessInfo struct {
	State               State
	PID                 int
	HealthLatency       time.Duration
	ConsecutiveFailures int
}

// proc is the mutable per-model runtime record. Its state is written only
// by Start/Stop and the model's own health loop; readers take the RWMutex.
type proc struct {
	state       State
	pid         int
	baseURL     string
	stop        func() error
	cancel      context.CancelFunc
	latency     time.Duration
	consecFails int
}

// Supervisor owns all model server processes.
type Supervisor struct {
	cfg     Config
	reg     *registry.Registry
	spawner Spawner
	prober  Prober
	log     zerolog.Logger

	mu    sync.RWMutex
	procs map[string]*proc
	wg    sync.WaitGroup
}

// New builds a supervisor. spawner and prober are injectable for tests.
func New(reg *registry.Registry, spawner Spawner, prober Prober, cfg Config, log zerolog.Logger) *Supervisor {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Supervisor{
		cfg:     cfg,
		reg:     reg,
		spawner: spawner,
		prober:  prober,
		log:     log,
		procs:   make(map[string]*proc),
	}
}

// Start launches the model's server process and its health-check loop.
// Starting an already starting or ready model is a no-op.
func (s *Supervisor) Start(modelID string) error {
	model, ok := s.reg.Get(modelID)
	if !ok {
		return fmt.Errorf("unknown model id %q", modelID)
	}

	// Reserve the slot before spawning so a concurrent Start for the same
	// model sees the starting state and bails instead of spawning a second
	// process on the same port.
	s.mu.Lock()
	if p, exists := s.procs[modelID]; exists && (p.state == StateStarting || p.state == StateReady) {
		s.mu.Unlock()
		return nil
	}
	placeholder := &proc{state: StateStarting}
	s.procs[modelID] = placeholder
	s.mu.Unlock()

	pid, stop, err := s.spawner.Spawn(model, s.cfg.Host)
	if err != nil {
		s.setState(modelID, &proc{state: StateError})
		return fmt.Errorf("spawn %s: %w", modelID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if p := s.procs[modelID]; p != placeholder || p.state != StateStarting {
		// Stopped while the spawn was in flight; the fresh process has no
		// record to live in, tear it down.
		s.mu.Unlock()
		cancel()
		if stopErr := stop(); stopErr != nil {
			s.log.Warn().Str("model", modelID).Err(stopErr).Msg("process stop reported error")
		}
		return nil
	}
	placeholder.pid = pid
	placeholder.baseURL = fmt.Sprintf("http://%s:%d", s.cfg.Host, model.Port)
	placeholder.stop = stop
	placeholder.cancel = cancel
	s.mu.Unlock()

	s.log.Info().Str("model", modelID).Int("pid", pid).Str("base_url", placeholder.baseURL).Msg("model process started")
	stateTransitions.WithLabelValues(string(StateStarting)).Inc()

	s.wg.Add(1)
	go s.healthLoop(ctx, modelID)
	return nil
}

// Stop terminates the model's process and health loop. Idempotent: stopping
// a model that is absent or already stopped is a no-op, not an error.
func (s *Supervisor) Stop(modelID string) error {
	s.mu.Lock()
	p, exists := s.procs[modelID]
	if !exists || p.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	cancel, stop := p.cancel, p.stop
	p.state = StateStopped
	p.pid = 0
	p.consecFails = 0
	p.cancel = nil
	p.stop = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		if err := stop(); err != nil {
			s.log.Warn().Str("model", modelID).Err(err).Msg("process stop reported error")
		}
	}
	stateTransitions.WithLabelValues(string(StateStopped)).Inc()
	s.log.Info().Str("model", modelID).Msg("model process stopped")
	return nil
}

// Restart stops then starts the model; the usual exit from the error state.
func (s *Supervisor) Restart(modelID string) error {
	if err := s.Stop(modelID); err != nil {
		return err
	}
	return s.Start(modelID)
}

// StartEnabled starts every enabled model in the registry. Individual spawn
// failures are logged and do not abort the rest; a single down model must
// not break routing to other tiers.
func (s *Supervisor) StartEnabled() {
	for _, m := range s.reg.List() {
		if !m.Enabled {
			continue
		}
		if err := s.Start(m.ID); err != nil {
			s.log.Error().Str("model", m.ID).Err(err).Msg("failed to start model")
		}
	}
}

// IsRunning reports whether the model's process passed its health checks.
func (s *Supervisor) IsRunning(modelID string) bool {
	return s.StateOf(modelID) == StateReady
}

// StateOf returns the model's current lifecycle state.
func (s *Supervisor) StateOf(modelID string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.procs[modelID]; ok {
		return p.state
	}
	return StateStopped
}

// Info returns the full runtime record for one model.
func (s *Supervisor) Info(modelID string) ProcessInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.procs[modelID]; ok {
		return ProcessInfo{State: p.state, PID: p.pid, HealthLatency: p.latency, ConsecutiveFailures: p.consecFails}
	}
	return ProcessInfo{State: StateStopped}
}

// StatusSummary maps every known model id to its state.
func (s *Supervisor) StatusSummary() map[string]State {
	out := make(map[string]State)
	for _, m := range s.reg.List() {
		out[m.ID] = StateStopped
	}
	s.mu.RLock()
	for id, p := range s.procs {
		out[id] = p.state
	}
	s.mu.RUnlock()
	return out
}

// Shutdown stops all processes and waits for every health loop to exit, or
// for ctx to expire.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for _, m := range s.reg.List() {
		_ = s.Stop(m.ID)
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) setState(modelID string, p *proc) {
	s.mu.Lock()
	s.procs[modelID] = p
	s.mu.Unlock()
}

package supervisor

import (
	"context"
	"net/http"
	"time"
)

// Prober checks whether a model server answers on its base URL.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// HTTPProber probes llama-server style endpoints: /health first, falling
// back to /v1/models for builds that predate the health route.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds the default prober. Timeout is carried by the probe
// context, so the client itself has none.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: 0}}
}

func (p *HTTPProber) Probe(ctx context.Context, baseURL string) error {
	if err := p.get(ctx, baseURL+"/health"); err == nil {
		return nil
	}
	return p.get(ctx, baseURL+"/v1/models")
}

func (p *HTTPProber) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &probeStatusError{status: resp.StatusCode}
	}
	return nil
}

type probeStatusError struct{ status int }

func (e *probeStatusError) Error() string { return "probe returned non-2xx status" }

// healthLoop drives one model's state machine from probe results. It is the
// sole writer of that model's health fields; readers snapshot under RLock.
func (s *Supervisor) healthLoop(ctx context.Context, modelID string) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.RLock()
		p, ok := s.procs[modelID]
		var baseURL string
		var state State
		if ok {
			baseURL = p.baseURL
			state = p.state
		}
		s.mu.RUnlock()
		if !ok || state == StateStopped {
			return
		}

		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		start := time.Now()
		err := s.prober.Probe(probeCtx, baseURL)
		cancel()
		latency := time.Since(start)

		if err == nil {
			s.recordSuccess(modelID, latency)
			continue
		}
		if restart := s.recordFailure(modelID); restart {
			s.log.Warn().Str("model", modelID).Msg("auto-restarting errored model")
			if rerr := s.Restart(modelID); rerr != nil {
				s.log.Error().Str("model", modelID).Err(rerr).Msg("auto-restart failed")
			}
			// This loop belongs to the old process; Restart started a new one.
			return
		}
	}
}

// recordSuccess resets the failure streak and promotes starting -> ready.
func (s *Supervisor) recordSuccess(modelID string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[modelID]
	if !ok {
		return
	}
	p.latency = latency
	p.consecFails = 0
	if p.state == StateStarting {
		p.state = StateReady
		stateTransitions.WithLabelValues(string(StateReady)).Inc()
		s.log.Info().Str("model", modelID).Dur("latency", latency).Msg("model ready")
	}
}

// recordFailure bumps the failure streak and demotes to error once the
// consecutive-failure threshold is crossed. A single blip never demotes.
// Returns true when the caller should attempt an automatic restart.
func (s *Supervisor) recordFailure(modelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[modelID]
	if !ok {
		return false
	}
	p.consecFails++
	if (p.state == StateReady || p.state == StateStarting) && p.consecFails >= s.cfg.FailureThreshold {
		p.state = StateError
		stateTransitions.WithLabelValues(string(StateError)).Inc()
		s.log.Warn().Str("model", modelID).Int("failures", p.consecFails).Msg("model transitioned to error")
		return s.cfg.AutoRestart
	}
	return false
}

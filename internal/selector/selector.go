// Package selector picks a serving model for a tier using count-based round
// robin: always the least-loaded eligible candidate rather than a rotating
// pointer. Counters converge to near-equal load regardless of arrival order
// and tolerate models joining or leaving the ready set.
package selector

import (
	"sync"

	"github.com/dlorp/synapse-engine-sub002/internal/registry"
	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// RunState answers whether a model's server process is ready. Satisfied by
// the supervisor; fakes implement it in tests.
type RunState interface {
	IsRunning(modelID string) bool
}

// Selector is safe for concurrent use. The read-compare-increment on the
// request-count table is a single critical section: two concurrent callers
// can never both observe the same minimum and double-assign it.
type Selector struct {
	mu     sync.Mutex
	reg    *registry.Registry
	run    RunState
	counts map[string]uint64
}

// New builds a selector over the registry and run-state source.
func New(reg *registry.Registry, run RunState) *Selector {
	return &Selector{reg: reg, run: run, counts: make(map[string]uint64)}
}

// Select returns an eligible model in the tier and charges it one request.
// A model is eligible only if it is enabled and its process is ready.
// When no model is eligible the error reports which other tiers do have
// availability, so the caller can decide on tier fallback.
func (s *Selector) Select(tier types.Tier) (types.Model, error) {
	candidates := s.eligible(tier)
	if len(candidates) == 0 {
		return types.Model{}, ErrNoModelsAvailable(tier, s.tiersWithAvailability(tier))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Registry order is the stable tie-break; any deterministic order works,
	// the contract is only near-equal counts over time.
	best := candidates[0]
	for _, m := range candidates[1:] {
		if s.counts[m.ID] < s.counts[best.ID] {
			best = m
		}
	}
	s.counts[best.ID]++
	selectionsTotal.WithLabelValues(best.ID).Inc()
	return best, nil
}

// eligible filters the tier's members to enabled and ready ones, preserving
// registry order.
func (s *Selector) eligible(tier types.Tier) []types.Model {
	var out []types.Model
	for _, m := range s.reg.TierMembers(tier) {
		if m.Enabled && s.run.IsRunning(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// tiersWithAvailability lists other tiers that currently have an eligible
// model, for the NoModelsAvailable diagnostic.
func (s *Selector) tiersWithAvailability(exclude types.Tier) []types.Tier {
	var out []types.Tier
	for _, t := range types.Tiers() {
		if t == exclude {
			continue
		}
		if len(s.eligible(t)) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// RequestCount reports the cumulative requests charged to a model. Counts
// are monotonically non-decreasing for the life of the selector.
func (s *Selector) RequestCount(modelID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[modelID]
}

// Counts returns a copy of the whole request-count table.
func (s *Selector) Counts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.counts))
	for id, n := range s.counts {
		out[id] = n
	}
	return out
}

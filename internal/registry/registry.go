// Package registry maintains the catalog of discovered models: which tier
// each serves, the port reserved for its server process, and whether the
// active profile enables it.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// Thresholds is the tier boundary table persisted alongside the catalog so
// a snapshot is self-describing.
type Thresholds struct {
	FastMax     float64 `json:"fast_max"`
	BalancedMax float64 `json:"balanced_max"`
}

// Registry maps model ids to discovered models. Written by the discovery
// scan and profile application; read by the selector and the HTTP layer.
type Registry struct {
	mu     sync.RWMutex
	models map[string]types.Model
	// order preserves discovery order for stable tier iteration.
	order          []string
	tierThresholds Thresholds
	portStart      int
	portEnd        int
	lastScan       time.Time
}

// New creates an empty registry over the given port range.
func New(thresholds Thresholds, portStart, portEnd int) *Registry {
	return &Registry{
		models:         make(map[string]types.Model),
		tierThresholds: thresholds,
		portStart:      portStart,
		portEnd:        portEnd,
	}
}

// add inserts a model, enforcing id and port uniqueness. Caller holds mu.
func (r *Registry) add(m types.Model) error {
	if _, exists := r.models[m.ID]; exists {
		return fmt.Errorf("duplicate model id %q", m.ID)
	}
	for _, other := range r.models {
		if other.Port == m.Port {
			return fmt.Errorf("port %d already assigned to %q", m.Port, other.ID)
		}
	}
	r.models[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

// Get returns a copy of the model by id.
func (r *Registry) Get(id string) (types.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	return m, ok
}

// List returns all models in discovery order. Copies; callers cannot mutate
// registry state through the result.
func (r *Registry) List() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// TierMembers returns the models of one tier in discovery order.
func (r *Registry) TierMembers(tier types.Tier) []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Model
	for _, id := range r.order {
		if m := r.models[id]; m.Tier == tier {
			out = append(out, m)
		}
	}
	return out
}

// SetEnabled flips one model's enablement. Synchronized against concurrent
// selection reads.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[id]
	if !ok {
		return fmt.Errorf("unknown model id %q", id)
	}
	m.Enabled = enabled
	r.models[id] = m
	return nil
}

// ApplyProfile enables exactly the listed models and disables the rest.
// Unknown ids are reported but the rest of the profile still applies.
func (r *Registry) ApplyProfile(enabledIDs []string) error {
	want := make(map[string]bool, len(enabledIDs))
	for _, id := range enabledIDs {
		want[id] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var unknown []string
	for id := range want {
		if _, ok := r.models[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	for id, m := range r.models {
		m.Enabled = want[id]
		r.models[id] = m
	}
	if len(unknown) > 0 {
		return fmt.Errorf("profile references unknown models: %v", unknown)
	}
	return nil
}

// Thresholds returns the persisted tier boundary table.
func (r *Registry) Thresholds() Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tierThresholds
}

// LastScan reports when discovery last ran; zero if never.
func (r *Registry) LastScan() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastScan
}

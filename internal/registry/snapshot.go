package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// Snapshot is the JSON-serializable registry state. Round-trips through
// Save/Load with full fidelity.
type Snapshot struct {
	Models         []types.Model `json:"models"`
	TierThresholds Thresholds    `json:"tier_thresholds"`
	PortRangeStart int           `json:"port_range_start"`
	PortRangeEnd   int           `json:"port_range_end"`
	LastScan       time.Time     `json:"last_scan"`
}

// Snapshot captures the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]types.Model, 0, len(r.order))
	for _, id := range r.order {
		models = append(models, r.models[id])
	}
	return Snapshot{
		Models:         models,
		TierThresholds: r.tierThresholds,
		PortRangeStart: r.portStart,
		PortRangeEnd:   r.portEnd,
		LastScan:       r.lastScan,
	}
}

// Save writes the registry snapshot as JSON.
func (r *Registry) Save(path string) error {
	snap := r.Snapshot()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// Load restores a registry from a snapshot file, validating port uniqueness.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	r := New(snap.TierThresholds, snap.PortRangeStart, snap.PortRangeEnd)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range snap.Models {
		if err := r.add(m); err != nil {
			return nil, fmt.Errorf("registry snapshot invalid: %w", err)
		}
	}
	r.lastScan = snap.LastScan
	return r, nil
}

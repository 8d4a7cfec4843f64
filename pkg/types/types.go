package types

import "strings"

// Tier classifies models by the latency/capability trade-off they offer.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierPowerful Tier = "powerful"
)

// ParseTier validates a tier name, ignoring case. Returns false for anything
// unknown.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(strings.ToLower(s)); t {
	case TierFast, TierBalanced, TierPowerful:
		return t, true
	}
	return "", false
}

// Tiers lists all tiers in ascending capability order.
func Tiers() []Tier {
	return []Tier{TierFast, TierBalanced, TierPowerful}
}

// Model describes one discovered model binary and its serving slot.
// Enabled is the only field mutated after discovery (by profile activation).
type Model struct {
	// Stable identifier derived from the model filename.
	ID string `json:"id"`
	// Human-friendly name.
	Name string `json:"name"`
	// Absolute path to the model file on disk.
	Path string `json:"path"`
	// Tier this model serves (fast, balanced, powerful).
	Tier Tier `json:"tier"`
	// TCP port reserved for this model's server process. Unique per registry.
	Port int `json:"port"`
	// Parameter count as parsed from the filename, e.g. "7B".
	SizeParams string `json:"size_params,omitempty"`
	// Quantization variant, e.g. "Q4_K_M".
	Quant string `json:"quant,omitempty"`
	// Capability flags inferred from the filename.
	IsInstruct bool `json:"is_instruct,omitempty"`
	IsCoder    bool `json:"is_coder,omitempty"`
	IsThinking bool `json:"is_thinking,omitempty"`
	// Whether the active profile allows routing to this model.
	Enabled bool `json:"enabled"`
}

package config

// Profile is a named overlay applied on top of the base configuration.
// Only the fields a deployment actually tunes are overridable; everything
// else comes from the base. Pointer fields distinguish "unset" from zero.
type Profile struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	// Model ids this profile enables. Models not listed are disabled.
	// A nil slice leaves enablement untouched.
	EnabledModels []string `json:"enabled_models" yaml:"enabled_models" toml:"enabled_models"`

	FastMax     *float64 `json:"fast_max" yaml:"fast_max" toml:"fast_max"`
	BalancedMax *float64 `json:"balanced_max" yaml:"balanced_max" toml:"balanced_max"`

	MaxArtifacts   *int `json:"max_artifacts" yaml:"max_artifacts" toml:"max_artifacts"`
	QueryTimeoutMs *int `json:"query_timeout_ms" yaml:"query_timeout_ms" toml:"query_timeout_ms"`

	SystemPrompt *string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
}

// Merged returns a copy of c with the profile's set fields applied.
// Pure function: neither receiver nor profile is mutated.
func (c Config) Merged(p Profile) Config {
	out := c
	if p.FastMax != nil {
		out.Routing.FastMax = *p.FastMax
	}
	if p.BalancedMax != nil {
		out.Routing.BalancedMax = *p.BalancedMax
	}
	if p.MaxArtifacts != nil {
		out.Retrieval.MaxArtifacts = *p.MaxArtifacts
	}
	if p.QueryTimeoutMs != nil {
		out.QueryTimeoutMs = *p.QueryTimeoutMs
	}
	if p.SystemPrompt != nil {
		out.SystemPrompt = *p.SystemPrompt
	}
	return out
}

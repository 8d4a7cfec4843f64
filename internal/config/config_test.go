package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port range", func(c *Config) { c.PortRangeStart = 31000; c.PortRangeEnd = 30000 }},
		{"inverted thresholds", func(c *Config) { c.Routing.FastMax = 8; c.Routing.BalancedMax = 3 }},
		{"negative fast max", func(c *Config) { c.Routing.FastMax = -1 }},
		{"zero context budget", func(c *Config) { c.Budgets.Context = 0 }},
		{"zero max artifacts", func(c *Config) { c.Retrieval.MaxArtifacts = 0 }},
		{"top_k below max artifacts", func(c *Config) { c.Retrieval.TopK = 2; c.Retrieval.MaxArtifacts = 8 }},
		{"inverted crag thresholds", func(c *Config) { c.Retrieval.IrrelevantBelow = 0.9; c.Retrieval.RelevantAbove = 0.5 }},
		{"zero failure threshold", func(c *Config) { c.Health.FailureThreshold = 0 }},
		{"unknown embedder", func(c *Config) { c.Embedder.Kind = "quantum" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsConfiguration(err) {
				t.Fatalf("error type = %T, want configuration error", err)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	c := Default()
	c.Health.IntervalMs = 1500
	c.QueryTimeoutMs = 9000
	if c.Health.Interval() != 1500*time.Millisecond {
		t.Errorf("interval = %v", c.Health.Interval())
	}
	if c.QueryTimeout() != 9*time.Second {
		t.Errorf("query timeout = %v", c.QueryTimeout())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `addr: ":9999"
models_dir: /tmp/models
routing:
  fast_max: 2.5
  balanced_max: 6.0
retrieval:
  max_artifacts: 4
  top_k: 16
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Routing.FastMax != 2.5 || cfg.Routing.BalancedMax != 6.0 {
		t.Errorf("routing = %+v", cfg.Routing)
	}
	if cfg.Retrieval.MaxArtifacts != 4 {
		t.Errorf("max artifacts = %d", cfg.Retrieval.MaxArtifacts)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `addr = ":7777"

[budgets]
system = 256
context = 2048
response = 512
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Budgets.Context != 2048 {
		t.Errorf("context budget = %d", cfg.Budgets.Context)
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestProfileMerge(t *testing.T) {
	base := Default()
	fastMax := 1.5
	timeout := 5000
	prompt := "short answers only"
	p := Profile{
		Name:           "quick",
		FastMax:        &fastMax,
		QueryTimeoutMs: &timeout,
		SystemPrompt:   &prompt,
	}
	merged := base.Merged(p)
	if merged.Routing.FastMax != 1.5 {
		t.Errorf("fast max = %v", merged.Routing.FastMax)
	}
	if merged.QueryTimeoutMs != 5000 {
		t.Errorf("timeout = %d", merged.QueryTimeoutMs)
	}
	if merged.SystemPrompt != prompt {
		t.Errorf("prompt = %q", merged.SystemPrompt)
	}
	// Untouched fields keep base values.
	if merged.Routing.BalancedMax != base.Routing.BalancedMax {
		t.Error("merge altered a field the profile did not set")
	}
	// Merging never mutates the receiver.
	if base.Routing.FastMax == 1.5 {
		t.Error("merge mutated the base config")
	}
}

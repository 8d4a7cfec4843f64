package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

var (
	sizeRe  = regexp.MustCompile(`(?i)[-_.](\d+(?:\.\d+)?)b[-_.]`)
	quantRe = regexp.MustCompile(`(?i)(q\d(?:_[a-z0-9]+)*|f16|bf16)`)
)

// ScanDir discovers *.gguf files under dir, parses metadata from filenames
// and assigns each model a unique port from the configured range. Models are
// enabled by default; a profile narrows that afterwards.
func (r *Registry) ScanDir(dir string) error {
	base, err := expandHome(dir)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	nextPort := r.portStart
	// Rescan replaces the catalog wholesale but keeps enablement for ids
	// that survive, so a profile applied earlier stays in effect.
	prevEnabled := make(map[string]bool, len(r.models))
	for id, m := range r.models {
		prevEnabled[id] = m.Enabled
	}
	r.models = make(map[string]types.Model)
	r.order = nil

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		if nextPort > r.portEnd {
			return fmt.Errorf("port range %d-%d exhausted at %q", r.portStart, r.portEnd, name)
		}
		m := modelFromFilename(name, filepath.Join(abs, name), nextPort)
		if enabled, ok := prevEnabled[m.ID]; ok {
			m.Enabled = enabled
		}
		if err := r.add(m); err != nil {
			return err
		}
		nextPort++
	}
	r.lastScan = time.Now()
	return nil
}

// modelFromFilename parses tier, size, quantization and capability flags
// from a gguf filename like "qwen2.5-coder-7b-instruct-q4_k_m.gguf".
func modelFromFilename(name, path string, port int) types.Model {
	id := strings.TrimSuffix(name, filepath.Ext(name))
	lower := strings.ToLower(id)

	var sizeParams string
	sizeB := 0.0
	if m := sizeRe.FindStringSubmatch("." + lower + "."); m != nil {
		sizeB, _ = strconv.ParseFloat(m[1], 64)
		sizeParams = strings.ToUpper(m[1] + "B")
	}
	var quant string
	if m := quantRe.FindStringSubmatch(lower); m != nil {
		quant = strings.ToUpper(m[1])
	}

	return types.Model{
		ID:         id,
		Name:       id,
		Path:       path,
		Tier:       tierForSize(sizeB),
		Port:       port,
		SizeParams: sizeParams,
		Quant:      quant,
		IsInstruct: strings.Contains(lower, "instruct") || strings.Contains(lower, "-it-") || strings.HasSuffix(lower, "-it"),
		IsCoder:    strings.Contains(lower, "coder") || strings.Contains(lower, "code"),
		IsThinking: strings.Contains(lower, "r1") || strings.Contains(lower, "qwq") || strings.Contains(lower, "think"),
		Enabled:    true,
	}
}

// tierForSize buckets parameter counts into tiers. Unknown sizes land in
// balanced: safer than assuming a giant model is cheap.
func tierForSize(sizeB float64) types.Tier {
	switch {
	case sizeB == 0:
		return types.TierBalanced
	case sizeB <= 4:
		return types.TierFast
	case sizeB <= 14:
		return types.TierBalanced
	default:
		return types.TierPowerful
	}
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension and overlays it on
// the defaults. Supports .yaml/.yml, .json and .toml.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, ErrConfiguration("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, ErrConfiguration(fmt.Sprintf("read config: %v", err))
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, ErrConfiguration(fmt.Sprintf("parse yaml: %v", err))
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, ErrConfiguration(fmt.Sprintf("parse json: %v", err))
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, ErrConfiguration(fmt.Sprintf("parse toml: %v", err))
		}
	default:
		return cfg, ErrConfiguration(fmt.Sprintf("unsupported config extension: %s", ext))
	}
	return cfg, nil
}

// LoadProfile reads a profile file (same formats as Load).
func LoadProfile(path string) (Profile, error) {
	var p Profile
	b, err := os.ReadFile(path)
	if err != nil {
		return p, ErrConfiguration(fmt.Sprintf("read profile: %v", err))
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &p)
	case ".json":
		err = json.Unmarshal(b, &p)
	case ".toml":
		err = toml.Unmarshal(b, &p)
	default:
		return p, ErrConfiguration(fmt.Sprintf("unsupported profile extension: %s", ext))
	}
	if err != nil {
		return p, ErrConfiguration(fmt.Sprintf("parse profile: %v", err))
	}
	return p, nil
}

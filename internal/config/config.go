// Package config loads cmd/bptidx's optional YAML configuration file
// (data directory, page size, log level), the way the teacher's CLI
// tools layer structured defaults under their flag parsing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/miniql/bptindex/internal/pagestore"
)

// Config is the full set of knobs bptidx.yaml can set. Every field has a
// sensible zero-value default via Default().
type Config struct {
	DataDir  string `yaml:"dataDir"`
	PageSize int    `yaml:"pageSize"`
	CacheCap int    `yaml:"cacheCap"`
	LogLevel string `yaml:"logLevel"`
}

// Default returns the configuration used when no bptidx.yaml is present.
func Default() Config {
	return Config{
		DataDir:  ".",
		PageSize: pagestore.DefaultPageSize,
		CacheCap: 256,
		LogLevel: "info",
	}
}

// Load reads path as YAML and overlays it onto Default(); fields absent
// from the file keep their default value. A missing file is not an error
// — Load silently returns Default() — matching the CLI's "config is
// optional" contract.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("config: pageSize must be positive, got %d", cfg.PageSize)
	}
	return cfg, nil
}

// Package config implements ConfigStore: one or more configured space
// entries, persisted as YAML at .confluence-sync/config.yaml. ${VAR} and
// ~ references inside the document are expanded on load; Save writes via
// temp file plus rename.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Space is one configured {space_key, parent_page_id|null, local_root,
// exclude_page_ids} entry.
type Space struct {
	SpaceKey      string   `yaml:"space_key"`
	ParentPageID  string   `yaml:"parent_page_id"` // empty means "space root"
	LocalPath     string   `yaml:"local_path"`
	ExcludePageID []string `yaml:"exclude_page_ids"`
	PageLimit     int      `yaml:"page_limit"`
}

// Config is the full persisted document at .confluence-sync/config.yaml.
type Config struct {
	Version int     `yaml:"version"`
	Spaces  []Space `yaml:"spaces"`

	// WorkerCount bounds the per-phase worker pool. Readers of older
	// config files that lack it fall back to the DefaultConfig value.
	WorkerCount int `yaml:"worker_count"`
}

// DefaultConfig returns a Config with the stock defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		WorkerCount: 10,
	}
}

// Load reads configuration from path. Environment variable references in
// the wiki's credential trio are resolved separately by internal/cli,
// not here — this store only resolves ${VAR} inside the config document
// itself (parent page ids, paths).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	for i := range cfg.Spaces {
		cfg.Spaces[i].LocalPath = expandPath(expandEnv(cfg.Spaces[i].LocalPath))
		cfg.Spaces[i].ParentPageID = expandEnv(cfg.Spaces[i].ParentPageID)
		if cfg.Spaces[i].PageLimit == 0 {
			cfg.Spaces[i].PageLimit = 10000
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if len(c.Spaces) == 0 {
		return fmt.Errorf("at least one space is required")
	}
	for _, s := range c.Spaces {
		if s.SpaceKey == "" {
			return fmt.Errorf("space_key is required for every space")
		}
		if s.LocalPath == "" {
			return fmt.Errorf("local_path is required for space %s", s.SpaceKey)
		}
	}
	return nil
}

// Save writes the configuration atomically via temp-file-plus-rename.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-config-*")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit config file: %w", err)
	}
	return nil
}

// SpaceByKey returns the configured space matching key, or nil.
func (c *Config) SpaceByKey(key string) *Space {
	for i := range c.Spaces {
		if c.Spaces[i].SpaceKey == key {
			return &c.Spaces[i]
		}
	}
	return nil
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return os.ExpandEnv(s)
}

func expandPath(s string) string {
	if strings.HasPrefix(s, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, s[1:])
		}
	}
	return s
}

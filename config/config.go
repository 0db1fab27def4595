// Package config handles farmhand's host-side configuration: where the
// worker executable and client script live, path mapping between submitter
// and worker filesystems, and timeout overrides.
//
// Config is stored at $XDG_CONFIG_HOME/farmhand/config.yaml (defaults to
// ~/.config/farmhand/config.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathMappingRule rewrites a submitter-side path prefix into a worker-local
// one.
type PathMappingRule struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Timeouts are optional per-phase overrides; zero values keep the adaptor
// defaults.
type Timeouts struct {
	ServerStart time.Duration `yaml:"server-start,omitempty"`
	ServerEnd   time.Duration `yaml:"server-end,omitempty"`
	WorkerStart time.Duration `yaml:"worker-start,omitempty"`
	WorkerEnd   time.Duration `yaml:"worker-end,omitempty"`
}

// Config holds the host-side settings for submit and render sessions.
type Config struct {
	// Executable is the worker binary; the environment override and PATH
	// lookup still apply.
	Executable string `yaml:"executable,omitempty"`
	// ClientScript pins the worker bootstrap script path.
	ClientScript string `yaml:"client-script,omitempty"`
	// ClientScriptDirs are extra directories searched for the bootstrap
	// script.
	ClientScriptDirs []string `yaml:"client-script-dirs,omitempty"`
	// PythonPath entries are appended to the worker's PYTHONPATH.
	PythonPath []string `yaml:"python-path,omitempty"`

	PathMapping []PathMappingRule `yaml:"path-mapping,omitempty"`
	Timeouts    Timeouts          `yaml:"timeouts,omitempty"`

	// DataRoot holds session state (journal, daemon files). Empty means
	// the XDG data directory.
	DataRoot string `yaml:"data-root,omitempty"`
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/farmhand/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "farmhand", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "farmhand", "config.yaml")
}

// Load reads the config file. If the file does not exist, a zero Config is
// returned (not an error).
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile reads a config from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ResolveDataRoot returns the directory for session state, honoring the
// configured override and falling back to $XDG_DATA_HOME/farmhand.
func (c *Config) ResolveDataRoot() string {
	if c.DataRoot != "" {
		return c.DataRoot
	}
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "share", "farmhand")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "farmhand")
}

// Mapper builds a path mapper from the configured rules, or nil when no
// rules exist.
func (c *Config) Mapper() *Mapper {
	if len(c.PathMapping) == 0 {
		return nil
	}
	return &Mapper{rules: c.PathMapping}
}

// Mapper applies the first matching path-mapping rule. Satisfies the IPC
// server's PathMapper interface.
type Mapper struct {
	rules []PathMappingRule
}

// MapPath rewrites path using the first rule whose source is a prefix of
// it, on path-segment boundaries. Unmatched paths pass through unchanged.
func (m *Mapper) MapPath(path string) string {
	for _, rule := range m.rules {
		if rule.Source == "" {
			continue
		}
		src := strings.TrimSuffix(rule.Source, "/")
		if path == src {
			return rule.Destination
		}
		if strings.HasPrefix(path, src+"/") {
			return rule.Destination + strings.TrimPrefix(path, src)
		}
	}
	return path
}

// Package cmdutil holds helpers shared by the farmhand subcommands.
package cmdutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"farmhand/config"
)

// LoadDataArg resolves an init-data or run-data flag value. The value is
// either inline YAML or a "file://" reference to a YAML document, which is
// what job templates pass.
func LoadDataArg(value string) (map[string]any, error) {
	if value == "" {
		return map[string]any{}, nil
	}
	text := value
	if path, ok := strings.CutPrefix(value, "file://"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		text = string(data)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse data document: %w", err)
	}
	return out, nil
}

// LoadConfig loads the user config, or the file named by --config when set.
func LoadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// JournalPath locates the session journal inside the data root.
func JournalPath(cfg *config.Config) string {
	return filepath.Join(cfg.ResolveDataRoot(), "journal.db")
}

// SessionDir is where daemon connection files and logs live by default.
func SessionDir(cfg *config.Config) string {
	return filepath.Join(cfg.ResolveDataRoot(), "sessions")
}

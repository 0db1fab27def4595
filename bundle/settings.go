// Package bundle assembles the job bundle a farm submission is made of: a
// job template describing the render step, the parameter values for this
// submission, and the asset references the farm must ship and collect.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"farmhand/client"
)

// Settings captures one submission. Zero values mean "render everything with
// the defaults".
type Settings struct {
	Name            string `yaml:"name"`
	SceneFile       string `yaml:"sceneFile"`
	Frames          string `yaml:"frames"`
	WriteNode       string `yaml:"writeNode"`
	View            string `yaml:"view"`
	ProxyMode       bool   `yaml:"proxyMode"`
	ContinueOnError bool   `yaml:"continueOnError"`
	Version         string `yaml:"version"`

	Priority            int    `yaml:"priority"`
	InitialStatus       string `yaml:"initialStatus"`
	MaxFailedTasksCount int    `yaml:"maxFailedTasksCount"`
	MaxRetriesPerTask   int    `yaml:"maxRetriesPerTask"`
}

// DefaultSettings returns the submission defaults for a scene.
func DefaultSettings(sceneFile string) Settings {
	name := strings.TrimSuffix(filepath.Base(sceneFile), filepath.Ext(sceneFile))
	return Settings{
		Name:                name,
		SceneFile:           sceneFile,
		Frames:              "1",
		WriteNode:           client.AllWriteNodes,
		View:                client.AllViews,
		ContinueOnError:     true,
		Priority:            50,
		InitialStatus:       "READY",
		MaxFailedTasksCount: 20,
		MaxRetriesPerTask:   5,
	}
}

// Validate rejects settings the farm would bounce anyway.
func (s Settings) Validate() error {
	if s.SceneFile == "" {
		return fmt.Errorf("validate settings: no scene file")
	}
	if s.Name == "" {
		return fmt.Errorf("validate settings: no job name")
	}
	if _, err := client.ParseFrameRange(s.Frames); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	if s.Priority < 0 || s.Priority > 100 {
		return fmt.Errorf("validate settings: priority %d out of range 0-100", s.Priority)
	}
	return nil
}

// stickySuffix is appended to the scene path to name its sticky settings.
const stickySuffix = ".farm_settings.yaml"

func stickyPath(sceneFile string) string {
	return strings.TrimSuffix(sceneFile, filepath.Ext(sceneFile)) + stickySuffix
}

// LoadSticky layers previously saved per-scene settings over the defaults.
// A scene without sticky settings yields the defaults.
func LoadSticky(sceneFile string) (Settings, error) {
	settings := DefaultSettings(sceneFile)
	data, err := os.ReadFile(stickyPath(sceneFile))
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read sticky settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse sticky settings: %w", err)
	}
	settings.SceneFile = sceneFile
	return settings, nil
}

// SaveSticky records the settings beside the scene so the next submission of
// the same scene starts from them.
func SaveSticky(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode sticky settings: %w", err)
	}
	if err := os.WriteFile(stickyPath(settings.SceneFile), data, 0o644); err != nil {
		return fmt.Errorf("write sticky settings: %w", err)
	}
	return nil
}

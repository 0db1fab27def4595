package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoColor = "NO_COLOR"
	envCI      = "CI"
	envTerm    = "TERM"
)

var colorState struct {
	mu          sync.RWMutex
	initialized bool
	colored     bool
}

// ConfigureColor decides the color profile once per process. plain forces
// ASCII output regardless of the terminal.
func ConfigureColor(plain bool) {
	colored := detectColor(plain)

	colorState.mu.Lock()
	colorState.initialized = true
	colorState.colored = colored
	colorState.mu.Unlock()

	if colored {
		lipgloss.SetColorProfile(termenv.ColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsColored reports whether styled output is active, configuring defaults
// on first use.
func IsColored() bool {
	colorState.mu.RLock()
	if colorState.initialized {
		colored := colorState.colored
		colorState.mu.RUnlock()
		return colored
	}
	colorState.mu.RUnlock()

	ConfigureColor(false)

	colorState.mu.RLock()
	defer colorState.mu.RUnlock()
	return colorState.colored
}

func detectColor(plain bool) bool {
	if plain {
		return false
	}
	if os.Getenv(envNoColor) != "" || envTruthy(envCI) {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envTerm)), "dumb") {
		return false
	}
	return stderrIsTerminal()
}

func stderrIsTerminal() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

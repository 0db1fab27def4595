package client

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel selection values the submitter writes into init data.
const (
	AllWriteNodes = "All Write Nodes"
	AllViews      = "All Views"
)

// WriteNode is one output node of the loaded scene.
type WriteNode struct {
	Name        string
	RenderOrder int
	Views       []string
	Disabled    bool
	// Reading marks a write node flipped into read mode to avoid
	// recomputation; it produces no outputs.
	Reading bool
}

// Engine is the scene backend the handler drives. The production backend is
// the compositor's scripting runtime; tests and the reference client use
// the simulated engine.
type Engine interface {
	// OpenScript loads a scene file. The path has already been mapped.
	OpenScript(path string) error
	SetProxy(enabled bool) error
	// WriteNodes lists every write node in the scene, including disabled
	// and reading ones; the handler filters.
	WriteNodes() ([]WriteNode, error)
	// Views lists the views defined by the scene.
	Views() ([]string, error)
	// Render executes one write node over the frame range. views is nil
	// when the node's own views apply.
	Render(node string, fr FrameRange, views []string) error
	// Close unloads the scene before the client exits.
	Close() error
}

// SimEngine is an in-process engine used by the reference client command
// and by tests. It prints the same output lines the production worker
// emits, which is what the supervisor's log classifier keys on.
type SimEngine struct {
	Scene SimScene
	Out   io.Writer

	opened string
	proxy  bool
}

// SimScene describes the simulated scene contents.
type SimScene struct {
	WriteNodes []WriteNode
	Views      []string
}

func (e *SimEngine) out() io.Writer {
	if e.Out != nil {
		return e.Out
	}
	return os.Stdout
}

func (e *SimEngine) OpenScript(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("the script file '%s' does not exist", path)
	}
	e.opened = path
	fmt.Fprintf(e.out(), "NukeClient: Loaded script %s\n", path)
	return nil
}

func (e *SimEngine) SetProxy(enabled bool) error {
	e.proxy = enabled
	return nil
}

func (e *SimEngine) WriteNodes() ([]WriteNode, error) {
	return e.Scene.WriteNodes, nil
}

func (e *SimEngine) Views() ([]string, error) {
	if len(e.Scene.Views) == 0 {
		return []string{"main"}, nil
	}
	return e.Scene.Views, nil
}

func (e *SimEngine) Render(node string, fr FrameRange, views []string) error {
	if views == nil {
		for _, n := range e.Scene.WriteNodes {
			if n.Name == node {
				views = n.Views
			}
		}
	}
	if len(views) == 0 {
		views = []string{"main"}
	}
	base := strings.TrimSuffix(filepath.Base(e.opened), filepath.Ext(e.opened))
	if base == "" {
		base = "output"
	}
	for frame := fr.Start; frame <= fr.End; frame++ {
		for _, view := range views {
			fmt.Fprintf(e.out(), "Writing /out/%s_%s_%s.%04d.exr took 0.05 seconds\n", base, node, view, frame)
		}
	}
	return nil
}

func (e *SimEngine) Close() error {
	e.opened = ""
	return nil
}

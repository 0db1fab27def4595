// Package assets discovers the file references of a compositor scene by
// scanning the script text. Scene scripts are plain text with one block per
// node; file knobs inside write-class nodes are render outputs, everything
// else is an input the farm must ship with the job.
package assets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Write-class nodes produce outputs; every other node's file knobs are
// inputs.
var writeNodeClasses = map[string]bool{
	"Write":     true,
	"DeepWrite": true,
	"WriteGeo":  true,
}

// frameTokenRE matches "%04d" and "####" style frame-number placeholders.
var frameTokenRE = regexp.MustCompile(`(?i)(#+)|%(\d*)d`)

// fileKnobs are the knob names that hold file paths.
var fileKnobs = map[string]bool{
	"file":        true,
	"proxy":       true,
	"vfield_file": true,
}

// References enumerates the assets a scene touches. Slices are sorted and
// deduplicated.
type References struct {
	InputFilenames    []string `yaml:"inputFilenames"`
	InputDirectories  []string `yaml:"inputDirectories"`
	OutputDirectories []string `yaml:"outputDirectories"`
}

// Node is one parsed scene-script block.
type Node struct {
	Class string
	Knobs map[string]string
}

// knob returns a knob value with surrounding quotes stripped.
func (n Node) knob(name string) string {
	return strings.Trim(n.Knobs[name], `"`)
}

func (n Node) boolKnob(name string) bool {
	v := strings.ToLower(n.knob(name))
	return v == "true" || v == "1"
}

// Scan reads a scene script and classifies every file reference in it. The
// scene file itself is always an input.
func Scan(scenePath string) (References, error) {
	nodes, err := Parse(scenePath)
	if err != nil {
		return References{}, err
	}

	sceneDir := filepath.Dir(scenePath)
	projectDir := sceneDir
	for _, n := range nodes {
		if n.Class == "Root" {
			if dir := n.knob("project_directory"); dir != "" {
				projectDir = dir
			}
		}
	}

	inputs := map[string]bool{scenePath: true}
	inputDirs := map[string]bool{}
	outputDirs := map[string]bool{}

	// A custom color config travels with the job, along with its LUT
	// directory.
	for _, n := range nodes {
		if n.Class != "Root" {
			continue
		}
		if ocio := n.knob("customOCIOConfigPath"); ocio != "" {
			if !filepath.IsAbs(ocio) {
				ocio = filepath.Join(projectDir, ocio)
			}
			ocio = filepath.Clean(ocio)
			inputs[ocio] = true
			inputDirs[filepath.Dir(ocio)] = true
		}
	}

	for _, n := range nodes {
		if n.boolKnob("disable") {
			continue
		}
		isOutput := writeNodeClasses[n.Class] && !n.boolKnob("reading")

		for knobName := range fileKnobs {
			path := n.knob(knobName)
			if path == "" {
				continue
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(projectDir, path)
			}
			path = filepath.Clean(path)

			if isOutput {
				outputDirs[filepath.Dir(path)] = true
				continue
			}
			// Frame tokens mark a sequence; the pattern itself is the
			// reference, sizing the sequence is the farm's problem.
			inputs[path] = true
		}
	}

	return References{
		InputFilenames:    sortedKeys(inputs),
		InputDirectories:  sortedKeys(inputDirs),
		OutputDirectories: sortedKeys(outputDirs),
	}, nil
}

// Parse reads the top-level node blocks of a scene script. Lines look like
//
//	Write {
//	 file /out/comp.####.exr
//	 name Write1
//	}
//
// Nested blocks (gizmos) are skipped at depth.
func Parse(scenePath string) ([]Node, error) {
	f, err := os.Open(scenePath)
	if err != nil {
		return nil, fmt.Errorf("open scene script: %w", err)
	}
	defer f.Close()

	var nodes []Node
	var current *Node
	depth := 0

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case current == nil:
			if class, ok := strings.CutSuffix(trimmed, " {"); ok && class != "" && !strings.Contains(class, " ") {
				current = &Node{Class: class, Knobs: map[string]string{}}
				depth = 1
			}
		case trimmed == "}":
			depth--
			if depth == 0 {
				nodes = append(nodes, *current)
				current = nil
			}
		case strings.HasSuffix(trimmed, "{"):
			depth++
		case depth == 1:
			name, value, found := strings.Cut(trimmed, " ")
			if found {
				current.Knobs[name] = value
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read scene script: %w", err)
	}
	return nodes, nil
}

// ExpandFrameToken replaces the first frame placeholder in path with frame,
// zero-padded to the placeholder's width.
func ExpandFrameToken(path string, frame int) string {
	m := frameTokenRE.FindStringSubmatchIndex(path)
	if m == nil {
		return path
	}
	padding := 1
	if m[2] >= 0 { // (#+)
		padding = m[3] - m[2]
	} else if m[4] >= 0 && m[5] > m[4] { // %(\d*)d with explicit width
		fmt.Sscanf(path[m[4]:m[5]], "%d", &padding)
	}
	return path[:m[0]] + fmt.Sprintf("%0*d", padding, frame) + path[m[1]:]
}

// HasFrameToken reports whether path contains a frame placeholder.
func HasFrameToken(path string) bool {
	return frameTokenRE.MatchString(path)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

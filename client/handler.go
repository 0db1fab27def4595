package client

import (
	"fmt"
	"io"
	"os"
	"sort"

	"farmhand"
)

// Handler owns the per-session render state and dispatches actions by name.
// The zero selection means "render everything": all enabled write nodes,
// each with its own views.
type Handler struct {
	engine Engine
	out    io.Writer
	errOut io.Writer

	continueOnError bool
	selectedNodes   []string // nil means all write nodes
	selectedViews   []string // nil means per-node views

	actions map[string]func(args map[string]any) error
}

func NewHandler(engine Engine, out, errOut io.Writer) *Handler {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	h := &Handler{
		engine:          engine,
		out:             out,
		errOut:          errOut,
		continueOnError: true,
	}
	h.actions = map[string]func(map[string]any) error{
		farmhand.ActionScriptFile:      h.setScriptFile,
		farmhand.ActionContinueOnError: h.setContinueOnError,
		farmhand.ActionProxy:           h.setProxy,
		farmhand.ActionWriteNodes:      h.setWriteNodes,
		farmhand.ActionViews:           h.setViews,
		farmhand.ActionStartRender:     h.startRender,
	}
	return h
}

// Dispatch runs the handler registered for the action's name.
func (h *Handler) Dispatch(a farmhand.Action) error {
	fn, ok := h.actions[a.Name]
	if !ok {
		return fmt.Errorf("unknown action %q", a.Name)
	}
	if err := fn(a.Args); err != nil {
		return fmt.Errorf("action %s: %w", a.Name, err)
	}
	return nil
}

func (h *Handler) setScriptFile(args map[string]any) error {
	path, err := argString(args, farmhand.ActionScriptFile)
	if err != nil {
		return err
	}
	return h.engine.OpenScript(path)
}

func (h *Handler) setContinueOnError(args map[string]any) error {
	v, err := argBool(args, farmhand.ActionContinueOnError)
	if err != nil {
		return err
	}
	h.continueOnError = v
	return nil
}

func (h *Handler) setProxy(args map[string]any) error {
	v, err := argBool(args, farmhand.ActionProxy)
	if err != nil {
		return err
	}
	return h.engine.SetProxy(v)
}

func (h *Handler) setWriteNodes(args map[string]any) error {
	names, err := argStringList(args, farmhand.ActionWriteNodes, "write nodes")
	if err != nil {
		return err
	}

	available, err := h.renderableNodes()
	if err != nil {
		return err
	}
	byName := make(map[string]WriteNode, len(available))
	for _, n := range available {
		byName[n.Name] = n
	}

	if len(names) == 1 && names[0] == AllWriteNodes {
		h.selectedNodes = nil
		return nil
	}

	var missing []string
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("the following nodes are missing from the script: %v", missing)
	}

	sort.Strings(names)
	h.selectedNodes = names
	return nil
}

func (h *Handler) setViews(args map[string]any) error {
	views, err := argStringList(args, farmhand.ActionViews, "views")
	if err != nil {
		return err
	}

	// "All Views" means each node renders its own views; nothing to pin.
	if len(views) == 1 && views[0] == AllViews {
		h.selectedViews = nil
		return nil
	}

	sceneViews, err := h.engine.Views()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(sceneViews))
	for _, v := range sceneViews {
		known[v] = true
	}
	var missing []string
	for _, v := range views {
		if !known[v] {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("the following views are missing from the script: %v", missing)
	}

	h.selectedViews = views
	return nil
}

func (h *Handler) startRender(args map[string]any) error {
	rangeStr, err := argString(args, "frame_range")
	if err != nil {
		return err
	}
	fr, err := ParseFrameRange(rangeStr)
	if err != nil {
		return err
	}

	nodes, err := h.nodesToRender()
	if err != nil {
		return err
	}

	// Render order is the scene author's pipeline ordering, e.g. precomps
	// before finals.
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].RenderOrder < nodes[j].RenderOrder
	})

	counts := h.outputCounts(nodes)
	total := 0
	for _, c := range counts {
		total += c
	}

	runningTotal := 0
	for i, node := range nodes {
		fmt.Fprintf(h.out, "NukeClient: Creating outputs %d-%d of %d total outputs.\n",
			runningTotal, runningTotal+counts[i], total)

		if err := h.engine.Render(node.Name, fr, h.selectedViews); err != nil {
			fmt.Fprintf(h.errOut, "NukeClient: Encountered the following Exception while running node '%s': '%v'\n",
				node.Name, err)
			if !h.continueOnError {
				return err
			}
		}
		runningTotal += counts[i]
	}

	if fr.End > fr.Start {
		fmt.Fprintf(h.out, "NukeClient: Finished Rendering Frames %d-%d\n", fr.Start, fr.End)
	} else {
		fmt.Fprintf(h.out, "NukeClient: Finished Rendering Frame %d\n", fr.Start)
	}
	return nil
}

// Close unloads the scene. Dispatched out of band by the poll loop since it
// also ends the session.
func (h *Handler) Close() error {
	return h.engine.Close()
}

// renderableNodes filters out disabled nodes and write nodes flipped into
// read mode.
func (h *Handler) renderableNodes() ([]WriteNode, error) {
	all, err := h.engine.WriteNodes()
	if err != nil {
		return nil, err
	}
	nodes := make([]WriteNode, 0, len(all))
	for _, n := range all {
		if n.Disabled || n.Reading {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (h *Handler) nodesToRender() ([]WriteNode, error) {
	available, err := h.renderableNodes()
	if err != nil {
		return nil, err
	}
	if h.selectedNodes == nil {
		names := make([]string, len(available))
		for i, n := range available {
			names[i] = n.Name
		}
		fmt.Fprintf(h.out, "NukeClient: No write nodes were specified, running all write nodes: %v\n", names)
		return available, nil
	}

	byName := make(map[string]WriteNode, len(available))
	for _, n := range available {
		byName[n.Name] = n
	}
	nodes := make([]WriteNode, 0, len(h.selectedNodes))
	for _, name := range h.selectedNodes {
		node, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("the following nodes are missing from the script: %v", []string{name})
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// outputCounts estimates how many outputs each node will produce, which
// feeds the progress lines. With pinned views every node produces the same
// count; otherwise each node's own views decide.
func (h *Handler) outputCounts(nodes []WriteNode) []int {
	counts := make([]int, len(nodes))
	for i, node := range nodes {
		if h.selectedViews != nil {
			counts[i] = len(h.selectedViews)
			continue
		}
		if len(node.Views) > 0 {
			counts[i] = len(node.Views)
		} else {
			counts[i] = 1
		}
	}
	return counts
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q: expected a non-empty string, got %T", key, v)
	}
	return s, nil
}

func argBool(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok {
		return false, fmt.Errorf("missing argument %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected a bool, got %T", key, v)
	}
	return b, nil
}

func argStringList(args map[string]any, key, what string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings for %s, got element of type %T", what, item)
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("expected a list of strings for %s, got %T", what, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s were specified", what)
	}
	return out, nil
}

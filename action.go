package farmhand

import (
	"fmt"
	"sort"
	"strings"
)

// Action is one named unit of work sent from the adaptor to the worker
// process over the IPC channel. Immutable once enqueued; delivery order is
// positional.
type Action struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Worker-side action names. The worker dispatches on these verbatim.
const (
	ActionScriptFile      = "script_file"
	ActionContinueOnError = "continue_on_error"
	ActionProxy           = "proxy"
	ActionWriteNodes      = "write_nodes"
	ActionViews           = "views"
	ActionStartRender     = "start_render"
	ActionClose           = "close"
)

func (a Action) String() string {
	if len(a.Args) == 0 {
		return a.Name
	}
	keys := make([]string, 0, len(a.Args))
	for k := range a.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, a.Args[k]))
	}
	return a.Name + "(" + strings.Join(parts, ", ") + ")"
}

package farmhand

// Status is one progress report pushed to the farm agent. Progress is a
// percentage in [0, 100].
type Status struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// Environment variables shared between the adaptor and the worker process.
const (
	// EnvServerPath carries the unix-socket path of the adaptor's action
	// server. Set in the worker's environment only after the server is bound.
	EnvServerPath = "NUKE_ADAPTOR_SERVER_PATH"

	// EnvExecutable overrides the worker executable. Defaults to
	// DefaultExecutable resolved on PATH.
	EnvExecutable = "NUKE_ADAPTOR_NUKE_EXECUTABLE"

	// EnvClientScript overrides the client bootstrap script handed to the
	// worker on its command line.
	EnvClientScript = "NUKE_ADAPTOR_CLIENT_SCRIPT"
)

// DefaultExecutable is the worker binary name used when EnvExecutable is unset.
const DefaultExecutable = "nuke"

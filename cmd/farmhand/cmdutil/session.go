package cmdutil

import (
	"encoding/json"
	"fmt"
	"os"

	"farmhand"
	"farmhand/adaptor"
	"farmhand/cmd/farmhand/ui"
	"farmhand/config"
	"farmhand/status"
)

// StatusReporter writes each progress report twice: a JSON line on stdout
// for the farm agent, and a styled line on stderr for humans.
func StatusReporter() status.Reporter {
	return func(st farmhand.Status) {
		line, err := json.Marshal(st)
		if err != nil {
			return
		}
		fmt.Fprintln(os.Stdout, string(line))
		fmt.Fprintln(os.Stderr, ui.ProgressMsg(st.Progress, st.Message))
	}
}

// NewSupervisor builds a worker supervisor from the user config.
func NewSupervisor(cfg *config.Config) *adaptor.Supervisor {
	opts := []adaptor.Option{}
	if cfg.Executable != "" {
		opts = append(opts, adaptor.WithExecutable(cfg.Executable))
	}
	if cfg.ClientScript != "" {
		opts = append(opts, adaptor.WithClientScript(cfg.ClientScript))
	}
	if len(cfg.ClientScriptDirs) > 0 {
		opts = append(opts, adaptor.WithClientScriptDirs(cfg.ClientScriptDirs...))
	}
	if len(cfg.PythonPath) > 0 {
		opts = append(opts, adaptor.WithPythonPath(cfg.PythonPath...))
	}
	if t := timeouts(cfg); t != adaptor.DefaultTimeouts() {
		opts = append(opts, adaptor.WithTimeouts(t))
	}

	if m := cfg.Mapper(); m != nil {
		return adaptor.New(StatusReporter(), m, opts...)
	}
	return adaptor.New(StatusReporter(), nil, opts...)
}

func timeouts(cfg *config.Config) adaptor.Timeouts {
	t := adaptor.DefaultTimeouts()
	if cfg.Timeouts.ServerStart > 0 {
		t.ServerStart = cfg.Timeouts.ServerStart
	}
	if cfg.Timeouts.ServerEnd > 0 {
		t.ServerEnd = cfg.Timeouts.ServerEnd
	}
	if cfg.Timeouts.WorkerStart > 0 {
		t.WorkerStart = cfg.Timeouts.WorkerStart
	}
	if cfg.Timeouts.WorkerEnd > 0 {
		t.WorkerEnd = cfg.Timeouts.WorkerEnd
	}
	return t
}

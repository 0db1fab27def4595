package adaptor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"farmhand"
	"farmhand/process"
)

// Default locations searched for the worker-side client script when neither
// the environment nor the config names one.
var defaultClientScriptDirs = []string{
	"/opt/farmhand/client",
	"/usr/local/share/farmhand/client",
}

const clientScriptName = "nuke_client.py"

// resolveExecutable picks the worker binary: environment override first,
// then the configured path, then the default name on PATH.
func resolveExecutable(configured string) (string, error) {
	name := os.Getenv(farmhand.EnvExecutable)
	if name == "" {
		name = configured
	}
	if name == "" {
		name = farmhand.DefaultExecutable
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("find worker executable %q: %w", name, err)
	}
	return path, nil
}

// resolveClientScript locates the bootstrap script handed to the worker.
// Search order: environment override, configured path, then the configured
// and default directories. The error lists every path tried so a missing
// install is diagnosable from the job log alone.
func resolveClientScript(configured string, extraDirs []string) (string, error) {
	if path := os.Getenv(farmhand.EnvClientScript); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("client script from %s: %w", farmhand.EnvClientScript, err)
		}
		return path, nil
	}
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured client script: %w", err)
		}
		return configured, nil
	}

	dirs := append(append([]string{}, extraDirs...), defaultClientScriptDirs...)
	tried := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		path := filepath.Join(dir, clientScriptName)
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
		tried = append(tried, path)
	}
	return "", fmt.Errorf("could not find %s; checked: %s", clientScriptName, strings.Join(tried, ", "))
}

// workerSpec assembles the worker invocation: fixed flags plus the client
// script, with the action-server socket path and an extended PYTHONPATH in
// the environment. Called only after the server has bound.
func workerSpec(exe, clientScript, socketPath string, pythonPathExtras []string) process.Spec {
	env := os.Environ()
	env = append(env, farmhand.EnvServerPath+"="+socketPath)

	additions := append([]string{filepath.Dir(clientScript)}, pythonPathExtras...)
	pythonPath := strings.Join(additions, string(os.PathListSeparator))
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		pythonPath = existing + string(os.PathListSeparator) + pythonPath
	}
	env = append(env, "PYTHONPATH="+pythonPath)

	return process.Spec{
		Path: exe,
		Args: []string{"-V", "2", "-t", clientScript},
		Env:  env,
	}
}

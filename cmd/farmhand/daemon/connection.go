package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Connection locates a running background session. The daemon writes it
// after the control socket is bound; start/render/stop read it.
type Connection struct {
	PID       int       `json:"pid"`
	Socket    string    `json:"socket"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"start_time"`
}

func writeConnection(path string, conn Connection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create connection file directory: %w", err)
	}
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("encode connection file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write connection file: %w", err)
	}
	return nil
}

func readConnection(path string) (Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Connection{}, fmt.Errorf("read connection file: %w", err)
	}
	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return Connection{}, fmt.Errorf("parse connection file: %w", err)
	}
	return conn, nil
}

// waitConnection polls for the connection file the background daemon writes
// once its control socket is up.
func waitConnection(path string, timeout time.Duration) (Connection, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := readConnection(path)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return Connection{}, fmt.Errorf("session did not report a connection file within %s", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Package process runs the worker as a child process and streams its
// output line by line. The supervisor owns exactly one worker at a time and
// is the only component allowed to signal it.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// scanInitialBuffer is the initial line scanner buffer size.
	scanInitialBuffer = 64 * 1024
	// scanMaxBuffer bounds a single output line. Render tools can emit very
	// long node dumps on errors.
	scanMaxBuffer = 1024 * 1024
)

// Spec describes one worker invocation.
type Spec struct {
	Path string
	Args []string
	Env  []string // full child environment; nil inherits the parent's
	Dir  string
}

// LineFunc receives one output line with trailing newline stripped. It may
// be called concurrently from the stdout and stderr readers.
type LineFunc func(line string)

// Handle is the supervisor's view of a live worker process.
type Handle interface {
	PID() int
	// Running reports whether the process has not exited yet.
	Running() bool
	// Done is closed once the process has exited and its output is drained.
	Done() <-chan struct{}
	// ExitCode is valid only after Done is closed. -1 means killed by signal.
	ExitCode() int
	// Terminate stops the process group: grace <= 0 kills immediately,
	// otherwise SIGTERM first and SIGKILL once the grace window elapses.
	// Safe to call on an already-exited process.
	Terminate(grace time.Duration) error
}

// Launcher starts a worker process and streams its output.
// Production: Launch. Testing: a closure returning a scripted Handle.
type Launcher func(ctx context.Context, spec Spec, onLine LineFunc) (Handle, error)

// Launch starts the worker in its own process group so that Terminate
// reaches any children it spawns. The process is killed immediately when
// ctx is cancelled.
func Launch(ctx context.Context, spec Spec, onLine LineFunc) (Handle, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	p := &proc{cmd: cmd, done: make(chan struct{}), exitCode: -1}

	var readers sync.WaitGroup
	readers.Add(2)
	go streamLines(stdout, onLine, &readers)
	go streamLines(stderr, onLine, &readers)

	go func() {
		// Drain both streams before Wait closes the pipes.
		readers.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitCode = cmd.ProcessState.ExitCode()
		p.mu.Unlock()
		if err != nil {
			slog.Debug("Worker process exited.", "pid", cmd.Process.Pid, "error", err)
		}
		close(p.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = p.Terminate(0)
		case <-p.done:
		}
	}()

	slog.Info("Worker process started.", "pid", cmd.Process.Pid, "path", spec.Path)
	return p, nil
}

type proc struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
}

func (p *proc) PID() int {
	return p.cmd.Process.Pid
}

func (p *proc) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *proc) Done() <-chan struct{} {
	return p.done
}

func (p *proc) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *proc) Terminate(grace time.Duration) error {
	if !p.Running() {
		return nil
	}
	pgid := -p.cmd.Process.Pid

	if grace <= 0 {
		_ = unix.Kill(pgid, unix.SIGKILL)
		<-p.done
		return nil
	}

	if err := unix.Kill(pgid, unix.SIGTERM); err != nil {
		// Process group already gone; the exit path is finishing up.
		<-p.done
		return nil
	}
	select {
	case <-p.done:
	case <-time.After(grace):
		slog.Warn("Worker ignored SIGTERM, killing.", "pid", p.cmd.Process.Pid, "grace", grace)
		_ = unix.Kill(pgid, unix.SIGKILL)
		<-p.done
	}
	return nil
}

func streamLines(r io.Reader, onLine LineFunc, wg *sync.WaitGroup) {
	defer wg.Done()

	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, scanInitialBuffer)
	sc.Buffer(buf, scanMaxBuffer)

	for sc.Scan() {
		onLine(strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("Worker output stream ended.", "error", err)
	}
}

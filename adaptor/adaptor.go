// Package adaptor supervises a headless worker process through a render
// session. It owns the worker subprocess, the action queue served to it
// over IPC, and the log classifier that turns raw worker output into
// progress and failure signals. No other component may spawn or signal the
// worker.
package adaptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"farmhand"
	"farmhand/ipc"
	"farmhand/process"
	"farmhand/status"
)

// Poll intervals are fixed; only the per-phase timeouts are configurable.
const (
	socketPollInterval = 10 * time.Millisecond
	actionPollInterval = 100 * time.Millisecond
)

// Timeouts bound each lifecycle phase of a session.
type Timeouts struct {
	ServerStart time.Duration // wait for the action server socket to bind
	ServerEnd   time.Duration // wait for the action server to stop
	WorkerStart time.Duration // wait for the worker to drain init actions
	WorkerEnd   time.Duration // wait for the worker to exit after close
}

// DefaultTimeouts mirrors the production farm configuration.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ServerStart: 30 * time.Second,
		ServerEnd:   30 * time.Second,
		WorkerStart: 300 * time.Second,
		WorkerEnd:   30 * time.Second,
	}
}

// ErrWorkerNotRunning is returned by Run when no live worker exists.
var ErrWorkerNotRunning = errors.New("cannot render because the worker is not running")

// The script_file action must be queued before any other initialization
// action; the remaining init keys are queued in this pinned order so action
// delivery is reproducible across sessions.
var initActionOrder = []string{
	farmhand.ActionContinueOnError,
	farmhand.ActionProxy,
	farmhand.ActionWriteNodes,
	farmhand.ActionViews,
}

// Supervisor drives one worker session: start, render, cleanup, cancel.
// Public methods run on the control goroutine; log handlers run on the
// worker output readers and communicate through the tracker and the
// pending-failure slot.
type Supervisor struct {
	timeouts Timeouts
	launcher process.Launcher
	tracker  *status.Tracker
	queue    *ipc.Queue
	server   *ipc.Server
	failure  pendingFailure

	executable       string
	clientScript     string
	clientScriptDirs []string
	pythonPathExtras []string
	socketDir        string

	mu        sync.Mutex
	phase     Phase
	worker    process.Handle
	initData  map[string]any
	startedAt time.Time
	cleaned   bool

	serverCancel context.CancelFunc
	serverDone   chan error
	socketPath   string
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTimeouts overrides the per-phase timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *Supervisor) { s.timeouts = t }
}

// WithLauncher substitutes the worker process launcher. Tests use this to
// script worker behavior without spawning anything.
func WithLauncher(l process.Launcher) Option {
	return func(s *Supervisor) { s.launcher = l }
}

// WithExecutable sets the configured worker binary, still subject to the
// environment override.
func WithExecutable(path string) Option {
	return func(s *Supervisor) { s.executable = path }
}

// WithClientScript pins the worker bootstrap script path.
func WithClientScript(path string) Option {
	return func(s *Supervisor) { s.clientScript = path }
}

// WithClientScriptDirs adds directories searched for the bootstrap script.
func WithClientScriptDirs(dirs ...string) Option {
	return func(s *Supervisor) { s.clientScriptDirs = append(s.clientScriptDirs, dirs...) }
}

// WithPythonPath appends extra PYTHONPATH entries for the worker.
func WithPythonPath(dirs ...string) Option {
	return func(s *Supervisor) { s.pythonPathExtras = append(s.pythonPathExtras, dirs...) }
}

// WithSocketDir sets where the action-server socket is created. Defaults to
// the system temp directory.
func WithSocketDir(dir string) Option {
	return func(s *Supervisor) { s.socketDir = dir }
}

// New creates a Supervisor. reporter receives every progress-relevant
// status update; mapper serves path-mapping queries to the worker and may
// be nil.
func New(reporter status.Reporter, mapper ipc.PathMapper, opts ...Option) *Supervisor {
	s := &Supervisor{
		timeouts:  DefaultTimeouts(),
		launcher:  process.Launch,
		queue:     ipc.NewQueue(),
		socketDir: os.TempDir(),
		phase:     PhaseNotStarted,
	}
	s.tracker = status.New(reporter)
	var serverOpts []ipc.ServerOption
	if mapper != nil {
		serverOpts = append(serverOpts, ipc.WithPathMapper(mapper))
	}
	s.server = ipc.NewServer(s.queue, serverOpts...)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Progress returns the last reported status.
func (s *Supervisor) Progress() farmhand.Status {
	return s.tracker.Last()
}

// StartedAt returns when Start was called, zero before then.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Supervisor) setPhase(to Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Cancel owns the phase until Cleanup stops the session. The control
	// goroutine observes the terminated worker and would report Failed;
	// that late transition is dropped, not asserted.
	if s.phase == PhaseCancelling && to != PhaseStopped {
		return
	}
	s.phase = s.phase.Transition(to)
}

func (s *Supervisor) continueOnError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.initData["continue_on_error"].(bool); ok {
		return v
	}
	return true
}

func (s *Supervisor) currentWorker() process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker
}

func (s *Supervisor) workerRunning() bool {
	w := s.currentWorker()
	return w != nil && w.Running()
}

// Start brings up the action server, seeds the queue with initialization
// actions, spawns the worker, and waits until the worker has drained the
// queue. Fatal on socket or initialization timeout and on early worker
// exit.
func (s *Supervisor) Start(ctx context.Context, initData map[string]any) error {
	if err := ValidateInitData(initData); err != nil {
		return err
	}

	s.mu.Lock()
	s.initData = initData
	s.startedAt = time.Now()
	s.phase = s.phase.Transition(PhaseStarting)
	s.mu.Unlock()

	s.tracker.Report(0, "Initializing Nuke")

	if err := s.startServer(); err != nil {
		s.setPhase(PhaseFailed)
		return err
	}
	socketPath, err := s.waitSocket(ctx)
	if err != nil {
		s.setPhase(PhaseFailed)
		return err
	}
	s.populateQueue(initData)

	if err := s.startWorker(ctx, socketPath); err != nil {
		s.setPhase(PhaseFailed)
		return err
	}
	if err := s.waitInitDrained(ctx); err != nil {
		s.setPhase(PhaseFailed)
		return err
	}

	s.setPhase(PhaseRunning)
	return nil
}

func (s *Supervisor) startServer() error {
	socketPath := filepath.Join(s.socketDir, fmt.Sprintf("farmhand-%d.sock", os.Getpid()))

	serverCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.server.Serve(serverCtx, socketPath)
	}()

	s.mu.Lock()
	s.serverCancel = cancel
	s.serverDone = done
	s.socketPath = socketPath
	s.mu.Unlock()
	return nil
}

// waitSocket busy-waits for the action server to report its bound socket.
func (s *Supervisor) waitSocket(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.timeouts.ServerStart)
	for {
		if path := s.server.BoundPath(); path != "" {
			return path, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("action server did not finish initializing within %s", s.timeouts.ServerStart)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-s.serverDone:
			s.mu.Lock()
			s.serverDone = nil
			s.mu.Unlock()
			return "", fmt.Errorf("action server exited before binding: %w", err)
		case <-time.After(socketPollInterval):
		}
	}
}

// populateQueue seeds the initialization actions: the script file first,
// then the allow-listed optional keys present in initData, in pinned order.
func (s *Supervisor) populateQueue(initData map[string]any) {
	s.queue.Enqueue(farmhand.Action{
		Name: farmhand.ActionScriptFile,
		Args: map[string]any{farmhand.ActionScriptFile: initData[farmhand.ActionScriptFile]},
	})
	for _, name := range initActionOrder {
		value, ok := initData[name]
		if !ok {
			continue
		}
		s.queue.Enqueue(farmhand.Action{Name: name, Args: map[string]any{name: value}})
	}
}

func (s *Supervisor) startWorker(ctx context.Context, socketPath string) error {
	exe, err := resolveExecutable(s.executable)
	if err != nil {
		return err
	}
	clientScript, err := resolveClientScript(s.clientScript, s.clientScriptDirs)
	if err != nil {
		return err
	}

	scanner := s.newScanner()
	spec := workerSpec(exe, clientScript, socketPath, s.pythonPathExtras)
	worker, err := s.launcher(ctx, spec, scanner.Feed)
	if err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	s.mu.Lock()
	s.worker = worker
	s.mu.Unlock()
	return nil
}

// waitInitDrained busy-waits until the worker has consumed every
// initialization action.
func (s *Supervisor) waitInitDrained(ctx context.Context) error {
	deadline := time.Now().Add(s.timeouts.WorkerStart)
	for s.workerRunning() && s.failure.check() == nil && s.queue.Len() > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("worker did not complete initialization actions within %s and failed to start", s.timeouts.WorkerStart)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(actionPollInterval):
		}
	}

	if err := s.failure.check(); err != nil {
		return err
	}
	if s.queue.Len() > 0 {
		w := s.currentWorker()
		return fmt.Errorf("worker exited with code %d and did not complete initialization actions", w.ExitCode())
	}
	return nil
}

// Run renders one frame range and blocks until the completion event from
// the worker's log, a captured failure, or worker exit. Worker exit during
// a render is always fatal.
func (s *Supervisor) Run(ctx context.Context, runData map[string]any) error {
	if err := s.failure.check(); err != nil {
		return err
	}
	if !s.workerRunning() {
		return ErrWorkerNotRunning
	}
	if err := ValidateRunData(runData); err != nil {
		return err
	}

	s.setPhase(PhaseRendering)
	s.tracker.BeginRender()
	s.queue.Enqueue(farmhand.Action{
		Name: farmhand.ActionStartRender,
		Args: map[string]any{"frame_range": runData["frame_range"]},
	})

	for s.workerRunning() && s.tracker.Rendering() && s.failure.check() == nil {
		select {
		case <-ctx.Done():
			s.setPhase(PhaseFailed)
			return ctx.Err()
		case <-time.After(actionPollInterval):
		}
	}

	if err := s.failure.check(); err != nil {
		s.setPhase(PhaseFailed)
		return err
	}
	if s.tracker.Rendering() {
		// The worker should have stayed alive waiting for the next action;
		// exiting mid-render means the render did not finish.
		s.setPhase(PhaseFailed)
		w := s.currentWorker()
		return fmt.Errorf("worker exited early and did not render successfully, check render logs (exit code %d)", w.ExitCode())
	}

	s.setPhase(PhaseRunning)
	return nil
}

// Cancel terminates an in-progress render immediately. The worker has no
// cooperative cancel, so there is no grace period. A nil no-op when the
// worker is not running.
func (s *Supervisor) Cancel() error {
	slog.Info("Cancel requested.")
	worker := s.currentWorker()
	if worker == nil || !worker.Running() {
		slog.Info("Nothing to cancel; worker is not running.")
		return nil
	}
	s.setPhase(PhaseCancelling)
	return worker.Terminate(0)
}

// Cleanup shuts the session down: a close action preempts any pending
// work, the worker gets the worker-end grace window and is then killed,
// and the action server is stopped. Pending-failure checks are suppressed
// throughout so cleanup always completes. Safe to call once per session;
// later calls are no-ops.
func (s *Supervisor) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return nil
	}
	s.cleaned = true
	s.mu.Unlock()

	s.failure.beginCleanup()
	defer s.failure.endCleanup()

	s.queue.EnqueueFront(farmhand.Action{Name: farmhand.ActionClose})

	if worker := s.currentWorker(); worker != nil {
		deadline := time.Now().Add(s.timeouts.WorkerEnd)
		for worker.Running() && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
			case <-time.After(actionPollInterval):
			}
			if ctx.Err() != nil {
				break
			}
		}
		if worker.Running() {
			slog.Error("Worker did not shut down gracefully within the end timeout, terminating.", "timeout", s.timeouts.WorkerEnd)
			_ = worker.Terminate(0)
		}
	}

	s.mu.Lock()
	cancel, done := s.serverCancel, s.serverDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case err := <-done:
			if err != nil {
				slog.Debug("Action server stopped with error.", "error", err)
			}
		case <-time.After(s.timeouts.ServerEnd):
			slog.Error("Failed to shut down the action server within the end timeout.", "timeout", s.timeouts.ServerEnd)
		}
	}

	s.setPhase(PhaseStopped)
	return nil
}

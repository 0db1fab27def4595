package adaptor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"farmhand"
	"farmhand/process"
)

type fakeHandle struct {
	mu           sync.Mutex
	exitCode     int
	terminations int
	done         chan struct{}
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{}), exitCode: -1}
}

func (h *fakeHandle) PID() int { return 4242 }

func (h *fakeHandle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *fakeHandle) Terminate(time.Duration) error {
	h.mu.Lock()
	h.terminations++
	h.mu.Unlock()
	h.exit(-1)
	return nil
}

func (h *fakeHandle) terminateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminations
}

func (h *fakeHandle) exit(code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
	default:
		h.exitCode = code
		close(h.done)
	}
}

// testSupervisor wires a Supervisor with a scripted worker. The launcher
// records the line callback so tests can feed worker output, and a drainer
// goroutine consumes queued actions the way a polling worker would.
func testSupervisor(t *testing.T, opts ...Option) (*Supervisor, *fakeHandle, *func(string)) {
	t.Helper()

	handle := newFakeHandle()
	var onLine func(string)

	clientScript := filepath.Join(t.TempDir(), "nuke_client.py")
	if err := os.WriteFile(clientScript, []byte("# client"), 0o644); err != nil {
		t.Fatalf("write client script: %v", err)
	}

	launcher := func(_ context.Context, _ process.Spec, fn process.LineFunc) (process.Handle, error) {
		onLine = fn
		return handle, nil
	}

	all := append([]Option{
		WithLauncher(launcher),
		WithExecutable("sh"),
		WithClientScript(clientScript),
		WithSocketDir(t.TempDir()),
		WithTimeouts(Timeouts{
			ServerStart: 5 * time.Second,
			ServerEnd:   5 * time.Second,
			WorkerStart: 5 * time.Second,
			WorkerEnd:   200 * time.Millisecond,
		}),
	}, opts...)

	s := New(nil, nil, all...)
	t.Cleanup(func() { _ = s.Cleanup(context.Background()) })
	return s, handle, &onLine
}

func drainQueue(t *testing.T, s *Supervisor) (stop func()) {
	t.Helper()
	stopCh := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopCh:
				return
			case <-time.After(time.Millisecond):
				s.queue.Dequeue()
			}
		}
	}()
	return func() { close(stopCh) }
}

func TestPopulateQueueOrder(t *testing.T) {
	tests := []struct {
		name      string
		initData  map[string]any
		wantNames []string
	}{
		{
			name:      "script file only",
			initData:  map[string]any{"script_file": "/jobs/shot.nk"},
			wantNames: []string{"script_file"},
		},
		{
			name: "all allow-listed keys",
			initData: map[string]any{
				"script_file":       "/jobs/shot.nk",
				"continue_on_error": false,
				"proxy":             true,
				"write_nodes":       []string{"Write1"},
				"views":             []string{"main"},
			},
			wantNames: []string{"script_file", "continue_on_error", "proxy", "write_nodes", "views"},
		},
		{
			name: "unknown keys are not queued",
			initData: map[string]any{
				"script_file": "/jobs/shot.nk",
				"proxy":       false,
				"version":     "15.1v3",
				"telemetry":   true,
			},
			wantNames: []string{"script_file", "proxy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, nil)
			s.populateQueue(tt.initData)

			if got, want := s.queue.Len(), len(tt.wantNames); got != want {
				t.Fatalf("queue length: got %d, want %d", got, want)
			}
			for i, want := range tt.wantNames {
				a, ok := s.queue.Dequeue()
				if !ok {
					t.Fatalf("action %d: queue empty, want %q", i, want)
				}
				if a.Name != want {
					t.Errorf("action %d: got %q, want %q", i, a.Name, want)
				}
			}
		})
	}
}

func TestStartDrainsInitActions(t *testing.T) {
	s, _, _ := testSupervisor(t)
	stop := drainQueue(t, s)
	defer stop()

	err := s.Start(context.Background(), map[string]any{
		"script_file": "/jobs/shot.nk",
		"proxy":       true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Phase(); got != PhaseRunning {
		t.Errorf("phase after Start: got %s, want %s", got, PhaseRunning)
	}
}

func TestStartFailsWhenWorkerExitsEarly(t *testing.T) {
	s, handle, _ := testSupervisor(t)
	handle.exit(13)

	err := s.Start(context.Background(), map[string]any{"script_file": "/jobs/shot.nk"})
	if err == nil {
		t.Fatal("Start: got nil error, want early-exit failure")
	}
	if !strings.Contains(err.Error(), "did not complete initialization") {
		t.Errorf("error %q does not mention initialization", err)
	}
	if !strings.Contains(err.Error(), "13") {
		t.Errorf("error %q does not include the exit code", err)
	}
}

func TestStartRejectsInvalidInitData(t *testing.T) {
	tests := []struct {
		name     string
		initData map[string]any
	}{
		{name: "missing script file", initData: map[string]any{"proxy": true}},
		{name: "wrong type", initData: map[string]any{"script_file": "/a.nk", "proxy": "yes"}},
		{name: "empty write nodes", initData: map[string]any{"script_file": "/a.nk", "write_nodes": []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, nil)
			if err := s.Start(context.Background(), tt.initData); err == nil {
				t.Error("Start: got nil error, want validation failure")
			}
		})
	}
}

func TestRunWithoutWorker(t *testing.T) {
	s := New(nil, nil)
	err := s.Run(context.Background(), map[string]any{"frame_range": "1-3"})
	if !errors.Is(err, ErrWorkerNotRunning) {
		t.Fatalf("Run: got %v, want ErrWorkerNotRunning", err)
	}
}

func TestRunCompletesOnRenderCompleteLine(t *testing.T) {
	var mu sync.Mutex
	var reports []farmhand.Status
	reporter := func(st farmhand.Status) {
		mu.Lock()
		reports = append(reports, st)
		mu.Unlock()
	}

	handle := newFakeHandle()
	var onLine func(string)
	clientScript := filepath.Join(t.TempDir(), "nuke_client.py")
	if err := os.WriteFile(clientScript, []byte("# client"), 0o644); err != nil {
		t.Fatalf("write client script: %v", err)
	}
	s := New(reporter, nil,
		WithLauncher(func(_ context.Context, _ process.Spec, fn process.LineFunc) (process.Handle, error) {
			onLine = fn
			return handle, nil
		}),
		WithExecutable("sh"),
		WithClientScript(clientScript),
		WithSocketDir(t.TempDir()),
		WithTimeouts(Timeouts{
			ServerStart: 5 * time.Second,
			ServerEnd:   5 * time.Second,
			WorkerStart: 5 * time.Second,
			WorkerEnd:   200 * time.Millisecond,
		}),
	)
	t.Cleanup(func() { _ = s.Cleanup(context.Background()) })

	stop := drainQueue(t, s)
	defer stop()
	if err := s.Start(context.Background(), map[string]any{"script_file": "/jobs/shot.nk"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		// A worker session: progress lines, then the completion line.
		time.Sleep(50 * time.Millisecond)
		onLine("NukeClient: Creating outputs 1-2 of 10 total outputs.")
		onLine("Writing /out/shot.0001.exr took 0.42 seconds")
		onLine("NukeClient: Finished Rendering Frames 1-10")
	}()

	if err := s.Run(context.Background(), map[string]any{"frame_range": "1-10"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := s.Phase(); got != PhaseRunning {
		t.Errorf("phase after Run: got %s, want %s", got, PhaseRunning)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) == 0 {
		t.Fatal("no status reports pushed")
	}
	final := reports[len(reports)-1]
	if final.Progress != 100 || final.Message != "RENDER COMPLETE" {
		t.Errorf("final report: got %+v, want progress 100 RENDER COMPLETE", final)
	}
	completes := 0
	last := -1.0
	for _, r := range reports[1:] { // skip the initializing report
		if r.Progress < last {
			t.Errorf("progress regressed: %v", reports)
		}
		last = r.Progress
		if r.Message == "RENDER COMPLETE" {
			completes++
		}
	}
	if completes != 1 {
		t.Errorf("RENDER COMPLETE reported %d times, want exactly once", completes)
	}
}

func TestRunFailsWhenWorkerDies(t *testing.T) {
	s, handle, _ := testSupervisor(t)
	stop := drainQueue(t, s)
	defer stop()
	if err := s.Start(context.Background(), map[string]any{"script_file": "/jobs/shot.nk"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		handle.exit(9)
	}()

	err := s.Run(context.Background(), map[string]any{"frame_range": "7"})
	if err == nil {
		t.Fatal("Run: got nil error, want worker-exit failure")
	}
	if !strings.Contains(err.Error(), "exit code 9") {
		t.Errorf("error %q does not include the exit code", err)
	}
}

func TestRunSurfacesWorkerError(t *testing.T) {
	s, _, onLine := testSupervisor(t)
	stop := drainQueue(t, s)
	defer stop()
	err := s.Start(context.Background(), map[string]any{
		"script_file":       "/jobs/shot.nk",
		"continue_on_error": false,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	const line = "ERROR: Read1: no such file"
	go func() {
		time.Sleep(50 * time.Millisecond)
		(*onLine)(line)
	}()

	err = s.Run(context.Background(), map[string]any{"frame_range": "1-2"})
	if err == nil {
		t.Fatal("Run: got nil error, want pending failure")
	}
	if !strings.Contains(err.Error(), line) {
		t.Errorf("error %q does not embed the matched line %q", err, line)
	}
}

func TestCancelWithoutWorker(t *testing.T) {
	s := New(nil, nil)
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel with no worker: %v", err)
	}
}

func TestCancelTerminatesImmediately(t *testing.T) {
	s, handle, _ := testSupervisor(t)
	stop := drainQueue(t, s)
	defer stop()
	if err := s.Start(context.Background(), map[string]any{"script_file": "/jobs/shot.nk"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if handle.Running() {
		t.Error("worker still running after Cancel")
	}
	if got := handle.terminateCount(); got != 1 {
		t.Errorf("Terminate calls: got %d, want 1", got)
	}
}

func TestCancelMidRenderKeepsCancellingPhase(t *testing.T) {
	s, handle, _ := testSupervisor(t)
	stop := drainQueue(t, s)
	defer stop()
	if err := s.Start(context.Background(), map[string]any{"script_file": "/jobs/shot.nk"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := s.Cancel(); err != nil {
			t.Errorf("Cancel: %v", err)
		}
	}()

	err := s.Run(context.Background(), map[string]any{"frame_range": "1-4"})
	if err == nil {
		t.Fatal("Run: got nil error, want worker-exit failure after cancel")
	}
	if handle.Running() {
		t.Error("worker still running after Cancel")
	}
	if got := s.Phase(); got != PhaseCancelling {
		t.Errorf("phase after cancelled Run: got %s, want %s", got, PhaseCancelling)
	}

	if err := s.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := s.Phase(); got != PhaseStopped {
		t.Errorf("phase after Cleanup: got %s, want %s", got, PhaseStopped)
	}
}

func TestCleanupRunsOnceAndSuppressesFailures(t *testing.T) {
	s, handle, _ := testSupervisor(t)
	stop := drainQueue(t, s)
	if err := s.Start(context.Background(), map[string]any{"script_file": "/jobs/shot.nk"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()

	// A failure captured before cleanup must not stop teardown.
	s.failure.set(errors.New("render exploded"))

	if err := s.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if got := s.Phase(); got != PhaseStopped {
		t.Errorf("phase after Cleanup: got %s, want %s", got, PhaseStopped)
	}
	// The worker ignored the close action, so the grace window elapsed and
	// it was terminated forcefully.
	if got := handle.terminateCount(); got != 1 {
		t.Errorf("Terminate calls: got %d, want 1", got)
	}

	// Second call is a no-op.
	if err := s.Cleanup(context.Background()); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
	if got := handle.terminateCount(); got != 1 {
		t.Errorf("Terminate calls after second Cleanup: got %d, want 1", got)
	}
}

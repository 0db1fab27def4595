// Package status aggregates render output counters into the progress
// reports pushed to the farm agent.
package status

import (
	"math"
	"sync"

	"farmhand"
)

// Reporter receives a status update on every progress-relevant event.
type Reporter func(farmhand.Status)

// Tracker holds the shared render-progress state. Log handlers mutate it
// from the process reader goroutines while the supervisor's control
// goroutine polls it, so everything sits behind one mutex.
type Tracker struct {
	mu        sync.Mutex
	current   int
	total     int
	rendering bool
	reporter  Reporter
	last      farmhand.Status
}

func New(reporter Reporter) *Tracker {
	return &Tracker{current: 1, total: 1, reporter: reporter}
}

// BeginRender resets the counters and marks a render in flight. The
// supervisor polls Rendering for the completion signal.
func (t *Tracker) BeginRender() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = 1
	t.total = 1
	t.rendering = true
}

// Rendering reports whether a render is in flight. Cleared by Complete.
func (t *Tracker) Rendering() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rendering
}

// SetOutputs records the output span parsed from a progress line and
// reports the recomputed percentage. The worker's first progress line
// reports output 0; that still counts as one output in flight.
func (t *Tracker) SetOutputs(current, total int) {
	if total < 1 {
		return
	}
	if current < 1 {
		current = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = current
	t.total = total
	t.emitLocked(progressOf(t.current, t.total), "")
}

// OutputComplete counts one finished output. Reported only while a render
// is in flight; the worker also writes outputs while loading scripts.
func (t *Tracker) OutputComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current++
	if t.rendering {
		t.emitLocked(progressOf(t.current, t.total), "")
	}
}

// Complete marks the in-flight render finished and reports progress 100
// with the given message, exactly once per render.
func (t *Tracker) Complete(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.rendering {
		return
	}
	t.rendering = false
	t.emitLocked(100, message)
}

// Report pushes an explicit status update outside the counter flow, e.g.
// the initial "Initializing" report before any output exists.
func (t *Tracker) Report(progress float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitLocked(progress, message)
}

// Progress returns the current percentage in [0, 100].
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return progressOf(t.current, t.total)
}

// Last returns the most recently reported status.
func (t *Tracker) Last() farmhand.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) emitLocked(progress float64, message string) {
	t.last = farmhand.Status{Progress: progress, Message: message}
	if t.reporter != nil {
		t.reporter(t.last)
	}
}

// progressOf rounds to two decimals, then clamps into [0, 100].
func progressOf(current, total int) float64 {
	p := math.Round(100*float64(current)/float64(total)*100) / 100
	return math.Max(math.Min(p, 100), 0)
}

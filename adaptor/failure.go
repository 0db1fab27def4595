package adaptor

import "sync"

// pendingFailure holds at most one error captured asynchronously from a log
// handler. The control goroutine surfaces it at its next check point. During
// cleanup checks are suppressed so teardown always runs to completion; the
// slot is cleared once cleanup finishes.
type pendingFailure struct {
	mu         sync.Mutex
	err        error
	suppressed bool
}

// set records err unless a failure is already pending. First error wins.
func (f *pendingFailure) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// check returns the pending error, or nil while suppressed.
func (f *pendingFailure) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suppressed {
		return nil
	}
	return f.err
}

// beginCleanup suppresses checks until endCleanup.
func (f *pendingFailure) beginCleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppressed = true
}

// endCleanup clears the slot and re-enables checks.
func (f *pendingFailure) endCleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = nil
	f.suppressed = false
}

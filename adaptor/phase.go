package adaptor

import "farmhand/internal/check"

// Phase is the supervisor's lifecycle state. Mutated only under the
// supervisor's lock; log handlers never touch it directly.
type Phase uint8

const (
	PhaseNotStarted Phase = iota + 1
	PhaseStarting
	PhaseRunning
	PhaseRendering
	PhaseCancelling
	PhaseStopped
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseRendering:
		return "rendering"
	case PhaseCancelling:
		return "cancelling"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseNotStarted:
		ok = to == PhaseStarting || to == PhaseStopped
	case PhaseStarting:
		ok = to == PhaseRunning || to == PhaseCancelling || to == PhaseFailed || to == PhaseStopped
	case PhaseRunning:
		ok = to == PhaseRendering || to == PhaseCancelling || to == PhaseStopped || to == PhaseFailed
	case PhaseRendering:
		ok = to == PhaseRunning || to == PhaseCancelling || to == PhaseStopped || to == PhaseFailed
	case PhaseCancelling:
		ok = to == PhaseStopped
	case PhaseStopped:
		ok = false
	case PhaseFailed:
		ok = to == PhaseStopped
	}
	check.Assertf(ok, "supervisor phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

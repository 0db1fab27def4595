package adaptor

import (
	"fmt"
	"regexp"
	"strconv"

	"farmhand/logscan"
)

// The worker has no structured progress API; these patterns over its output
// are the whole signaling protocol. Keep them in one place so changes stay
// auditable. They must track the line formats printed by the worker-side
// client (see the client package).
var (
	completedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`NukeClient: Finished Rendering Frame [0-9]+`),
		regexp.MustCompile(`NukeClient: Finished Rendering Frames [0-9]+-[0-9]+`),
	}
	progressPatterns = []*regexp.Regexp{
		regexp.MustCompile(`NukeClient: Creating outputs ([0-9]+)-([0-9]+) of ([0-9]+) total outputs\.`),
	}
	outputCompletePatterns = []*regexp.Regexp{
		regexp.MustCompile(`Writing .+ took [0-9.]+ seconds`),
	}
	// The worker spells its error marker several ways; one Eddy plugin adds
	// its own bracketed form. All variants route to the same handler.
	errorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`.*ERROR:.*`),
		regexp.MustCompile(`.*Error:.*`),
		regexp.MustCompile(`.*Error :.*`),
		regexp.MustCompile(`.*Eddy\[ERROR\].*`),
	}
)

// newScanner builds the supervisor's log classifier. Handlers run on the
// worker output reader goroutines and only touch the tracker and the
// pending-failure slot, both of which are lock-protected.
func (s *Supervisor) newScanner() *logscan.Scanner {
	return logscan.New(
		logscan.Rule{Patterns: completedPatterns, Handle: s.handleComplete},
		logscan.Rule{Patterns: progressPatterns, Handle: s.handleProgress},
		logscan.Rule{Patterns: outputCompletePatterns, Handle: s.handleOutputComplete},
		logscan.Rule{Patterns: errorPatterns, Handle: s.handleError},
	)
}

func (s *Supervisor) handleComplete(logscan.Match) {
	if s.failure.check() != nil {
		return
	}
	s.tracker.Complete("RENDER COMPLETE")
}

func (s *Supervisor) handleProgress(m logscan.Match) {
	if s.failure.check() != nil {
		return
	}
	current, err := strconv.Atoi(m.Group(1))
	if err != nil {
		return
	}
	total, err := strconv.Atoi(m.Group(3))
	if err != nil {
		return
	}
	s.tracker.SetOutputs(current, total)
}

func (s *Supervisor) handleOutputComplete(logscan.Match) {
	if s.failure.check() != nil {
		return
	}
	s.tracker.OutputComplete()
}

func (s *Supervisor) handleError(m logscan.Match) {
	if s.continueOnError() {
		return
	}
	s.failure.set(fmt.Errorf("worker reported an error: %s", m.Line))
}

// Package logscan classifies unstructured worker output into semantic
// events. The worker has no structured progress protocol; regex rules over
// stdout and stderr lines are the only signal channel, so the rule tables
// are kept explicit and testable apart from process supervision.
package logscan

import "regexp"

// Match is one classified output line.
type Match struct {
	Line   string
	Groups []string // submatches; Groups[0] is the full match
}

// Group returns submatch i, or "" when the pattern captured fewer groups.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Rule pairs alternative patterns with one handler. Within a rule, the
// first pattern that matches a line fires the handler exactly once; the
// remaining patterns are not tried for that line.
type Rule struct {
	Patterns []*regexp.Regexp
	Handle   func(Match)
}

// Scanner evaluates rules in registration order. Independent rules may all
// fire for the same line. Handlers run synchronously on the caller's
// goroutine, which for live sessions is the process output reader; they
// must only mutate supervisor state, never block.
type Scanner struct {
	rules []Rule
}

func New(rules ...Rule) *Scanner {
	return &Scanner{rules: rules}
}

// Feed classifies one line, with any trailing newline already stripped.
func (s *Scanner) Feed(line string) {
	for _, rule := range s.rules {
		for _, p := range rule.Patterns {
			groups := p.FindStringSubmatch(line)
			if groups == nil {
				continue
			}
			rule.Handle(Match{Line: line, Groups: groups})
			break
		}
	}
}

package common

import "fmt"

// MaxIssues caps how many diagnostics a single parse may accumulate.
// A deliberately corrupted file can trip thousands of checks; past the
// cap further messages are dropped silently so the cap itself does not
// generate more noise.
const MaxIssues = 200

// Issues is an ordered sink of non-fatal diagnostics for one parse.
// Each top-level parse owns exactly one sink and threads it by pointer
// through its sub-decoders; sinks are never shared between parses.
type Issues struct {
	list []string
}

// Add appends a diagnostic unless the sink is full.
func (s *Issues) Add(msg string) {
	if len(s.list) >= MaxIssues {
		return
	}
	s.list = append(s.list, msg)
}

// Addf appends a formatted diagnostic unless the sink is full.
func (s *Issues) Addf(format string, args ...any) {
	if len(s.list) >= MaxIssues {
		return
	}
	s.list = append(s.list, fmt.Sprintf(format, args...))
}

// Len returns the number of recorded diagnostics.
func (s *Issues) Len() int {
	return len(s.list)
}

// List returns the recorded diagnostics in insertion order. The result
// is never nil so it serializes as an empty array, not null.
func (s *Issues) List() []string {
	if s.list == nil {
		return []string{}
	}
	return s.list
}

package ir

import (
	"slices"
	"strings"
)

// Where selects events by tag. It is a disjunction of tag conjunctions:
// an event matches if it carries every tag of at least one clause.
//
// The zero value selects all events.
type Where struct {
	clauses [][]string
}

// AllEvents selects every event.
var AllEvents = Where{}

// Tags returns a selection matching events that carry all given tags.
func Tags(tags ...string) Where {
	if len(tags) == 0 {
		return AllEvents
	}
	clause := slices.Clone(tags)
	slices.Sort(clause)
	clause = slices.Compact(clause)
	return Where{clauses: [][]string{clause}}
}

// Or returns a selection matching events matched by either w or other.
func (w Where) Or(other Where) Where {
	if w.IsAll() || other.IsAll() {
		return AllEvents
	}
	out := make([][]string, 0, len(w.clauses)+len(other.clauses))
	out = append(out, w.clauses...)
	out = append(out, other.clauses...)
	return Where{clauses: out}
}

// IsAll reports whether w selects every event.
func (w Where) IsAll() bool {
	return len(w.clauses) == 0
}

// Matches evaluates the selection against an event.
func (w Where) Matches(e Event) bool {
	if w.IsAll() {
		return true
	}
	for _, clause := range w.clauses {
		if hasAll(e.Tags, clause) {
			return true
		}
	}
	return false
}

func hasAll(have, want []string) bool {
	for _, t := range want {
		if !slices.Contains(have, t) {
			return false
		}
	}
	return true
}

// String renders the selection as store query text, e.g.
// "FROM 'a' & 'b' | 'c'" or "FROM allEvents".
func (w Where) String() string {
	if w.IsAll() {
		return "FROM allEvents"
	}
	parts := make([]string, len(w.clauses))
	for i, clause := range w.clauses {
		quoted := make([]string, len(clause))
		for j, t := range clause {
			quoted[j] = "'" + strings.ReplaceAll(t, "'", "''") + "'"
		}
		parts[i] = strings.Join(quoted, " & ")
	}
	return "FROM " + strings.Join(parts, " | ")
}

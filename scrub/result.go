package scrub

// Outcome is the branch a scrub run ended in.
type Outcome int

const (
	// Absent means the target path did not exist.
	Absent Outcome = iota
	// Unchanged means the target held none of the secrets and was not written.
	Unchanged
	// Rewritten means at least one secret was found and the target was replaced.
	Rewritten
	// Failed means an error occurred before the target could be replaced.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Absent:
		return "absent"
	case Unchanged:
		return "unchanged"
	case Rewritten:
		return "rewritten"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a scrub run reports. A run always completes: faults are
// recorded in Err and never returned to the caller.
type Result struct {
	Outcome Outcome
	Err     error
}

// Changed reports whether the target file was rewritten.
func (r Result) Changed() bool {
	return r.Outcome == Rewritten
}

// RuleCount is how many times one rule's secret occurs in the target.
type RuleCount struct {
	Rule        Rule
	Occurrences int
}

// Report is the read-only view produced by Inspect.
type Report struct {
	Path   string
	Exists bool
	Counts []RuleCount
}

// Dirty reports whether any secret is present.
func (r Report) Dirty() bool {
	for _, c := range r.Counts {
		if c.Occurrences > 0 {
			return true
		}
	}
	return false
}

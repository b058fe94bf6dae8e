package core

import (
	"fmt"
	"time"
)

// Outcome is what happened to one source record.
type Outcome struct {
	Row       int                    `json:"row"`
	Name      string                 `json:"name"`
	Action    Action                 `json:"action,omitempty"`
	TargetID  string                 `json:"targetId,omitempty"`
	Fields    []string               `json:"fields,omitempty"`
	Match     string                 `json:"match,omitempty"`
	Ambiguous int                    `json:"ambiguous,omitempty"`
	Conflicts []RelationshipConflict `json:"conflicts,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
}

// Failed reports whether the record could not be reconciled.
func (o Outcome) Failed() bool {
	return o.Error != ""
}

// Report summarizes an import run.
type Report struct {
	RunID     string        `json:"runId"`
	Feed      string        `json:"feed"`
	Kind      Kind          `json:"kind"`
	Sheet     string        `json:"sheet,omitempty"`
	DryRun    bool          `json:"dryRun"`
	Origin    Origin        `json:"origin"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`

	Records  int `json:"records"`
	Excluded int `json:"excluded"`

	Created   int `json:"created"`
	Patched   int `json:"patched"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`

	Warnings []ParseWarning `json:"warnings,omitempty"`
	Outcomes []Outcome      `json:"outcomes"`

	// Error is set when the run was aborted before all records were planned.
	Error string `json:"error,omitempty"`
}

// tally recomputes the counters from the outcomes.
func (r *Report) tally() {
	r.Created, r.Patched, r.Skipped, r.Failed, r.Conflicts = 0, 0, 0, 0, 0
	for _, o := range r.Outcomes {
		r.Conflicts += len(o.Conflicts)
		if o.Failed() {
			r.Failed++
			continue
		}
		switch o.Action {
		case ActionCreate:
			r.Created++
		case ActionPatch:
			r.Patched++
		case ActionSkip:
			r.Skipped++
		}
	}
}

// Failures returns the outcomes of records that could not be reconciled.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// FirstFailures returns at most n failures in row order.
func (r *Report) FirstFailures(n int) []Outcome {
	failures := r.Failures()
	if n >= 0 && len(failures) > n {
		failures = failures[:n]
	}
	return failures
}

// Changed reports whether the run wrote (or would write) anything.
func (r *Report) Changed() bool {
	return r.Created+r.Patched > 0
}

// Summary is a one line description of the run.
func (r *Report) Summary() string {
	verb := "imported"
	if r.DryRun {
		verb = "planned"
	}
	return fmt.Sprintf("%s %s: %d created, %d patched, %d skipped, %d failed, %d conflicts, %d warnings",
		verb, r.Feed, r.Created, r.Patched, r.Skipped, r.Failed, r.Conflicts, len(r.Warnings))
}

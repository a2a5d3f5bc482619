package pipeline

import (
	"sync"
	"time"
)

// OutcomeKind classifies one project's fate within a run.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the per-project result line of a run report.
type Outcome struct {
	ProjectID    string
	ProjectTitle string
	Kind         OutcomeKind
	Detail       string
	InvoiceID    string
	Attempts     int
}

// RunReport accumulates the results of one pipeline run. Safe for
// concurrent recording; Finalize orders outcomes by source position.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	DryRun    bool

	FetchedCount int

	mu       sync.Mutex
	outcomes map[string]Outcome
	order    []string
	final    []Outcome
}

// NewRunReport starts a report for a run over the fetched record count.
func NewRunReport(runID string, dryRun bool, fetched int) *RunReport {
	return &RunReport{
		RunID:        runID,
		StartedAt:    time.Now(),
		DryRun:       dryRun,
		FetchedCount: fetched,
		outcomes:     make(map[string]Outcome),
	}
}

// Record sets or replaces a project's outcome. First-record order is
// preserved so the final report follows source order.
func (r *RunReport) Record(outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.outcomes[outcome.ProjectID]; !seen {
		r.order = append(r.order, outcome.ProjectID)
	}
	r.outcomes[outcome.ProjectID] = outcome
}

// Finalize freezes the report and returns the ordered outcomes.
func (r *RunReport) Finalize() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = make([]Outcome, 0, len(r.order))
	for _, id := range r.order {
		r.final = append(r.final, r.outcomes[id])
	}
	return r.final
}

// Outcomes returns the finalized outcomes, finalizing on first use.
func (r *RunReport) Outcomes() []Outcome {
	r.mu.Lock()
	finalized := r.final != nil
	r.mu.Unlock()
	if !finalized {
		return r.Finalize()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// Counts tallies outcomes by kind.
func (r *RunReport) Counts() (success, skipped, failed int) {
	for _, outcome := range r.Outcomes() {
		switch outcome.Kind {
		case OutcomeSuccess:
			success++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return success, skipped, failed
}

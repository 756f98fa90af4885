package harness

// TraceEvent records one monitor cycle for the trace.
type TraceEvent struct {
	Step       int      `json:"step"`
	RunID      string   `json:"run_id"`
	Status     string   `json:"status"`
	Items      int      `json:"items"`
	Summary    string   `json:"summary,omitempty"`
	New        []string `json:"new,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Modified   []string `json:"modified,omitempty"`
	SnapshotID int64    `json:"snapshot_id,omitempty"`
	Pruned     int64    `json:"pruned,omitempty"`

	// Events are the dispatched event kinds, in order.
	Events []string `json:"events,omitempty"`

	// Error is the error kind of a failed cycle.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

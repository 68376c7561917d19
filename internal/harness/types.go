package harness

import "github.com/roach88/pos/internal/store"

// StepTrace records what one scenario step did.
type StepTrace struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Store   string `json:"store,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Seq     string `json:"seq,omitempty"`

	// Outcome is step specific: "created", "updated", "unchanged" and
	// "deleted" for writes, "rejected:<kind>" for refused ones, and
	// counters for replicate and apply.
	Outcome string `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Steps []StepTrace `json:"steps"`

	// Errors contains step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Master is the master table after the last step, tombstones included.
	Master []store.MasterRow `json:"master"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(step StepTrace) {
	r.Steps = append(r.Steps, step)
}

package harness

import (
	"github.com/roach88/dustrun/internal/engine"
)

// Result is the outcome of a fixture execution.
type Result struct {
	// Name is the fixture name.
	Name string `json:"name"`

	// Pass is true if the outcome, every assertion and the replay matched.
	Pass bool `json:"pass"`

	// Trace is the run's trace.
	Trace engine.Trace `json:"trace"`

	// RealizerCalls counts realizer invocations, failed ones included.
	RealizerCalls int `json:"realizer_calls"`

	// Replay is the replayed trace; zero if the fixture has no replay block.
	Replay engine.Trace `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns "Success" or the failure kind of the trace.
func (r *Result) Outcome() string {
	if f := r.Trace.Fault(); f != nil {
		return string(f.Kind)
	}
	return OutcomeSuccess
}

// Effects returns the recorded events of a successful run, nil otherwise.
func (r *Result) Effects() []engine.EffectEvent {
	if r.Trace.Success == nil {
		return nil
	}
	return r.Trace.Success.Effects
}

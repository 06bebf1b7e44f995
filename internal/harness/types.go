package harness

// StepResult is the outcome of one step.
type StepResult struct {
	Name   string           `json:"name"`
	Action string           `json:"action"`
	Type   string           `json:"type"`
	Count  int              `json:"count"`
	Items  []map[string]any `json:"items,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Steps holds the step results in execution order.
	Steps []StepResult `json:"steps"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep records the result of a step.
func (r *Result) AddStep(sr StepResult) {
	r.Steps = append(r.Steps, sr)
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (*StepResult, bool) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i], true
		}
	}
	return nil, false
}

package domain

// Step names the stages of the warehouse load, in execution order.
type Step string

const (
	StepStaging    Step = "staging"
	StepPreFact    Step = "pre_fact"
	StepDimensions Step = "dimensions"
	StepFacts      Step = "facts"
	StepKafka      Step = "kafka"
)

// SCDOutcome summarizes a dimension merge.
type SCDOutcome struct {
	Inserted  int `json:"inserted"`
	Versioned int `json:"versioned"`
	Unchanged int `json:"unchanged"`
}

// StepResult describes the outcome of a single pipeline step. Notice carries
// non-fatal conditions (a failed completion-event publish) that must not fail
// the run, while Err marks the step as failed and aborts subsequent steps.
type StepResult struct {
	Step     Step        `json:"step"`
	Inserted int64       `json:"inserted,omitempty"`
	SCD      *SCDOutcome `json:"scd,omitempty"`
	Notice   string      `json:"notice,omitempty"`
	Err      string      `json:"error,omitempty"`
}

// Failed reports whether the step ended with a fatal error.
func (s StepResult) Failed() bool { return s.Err != "" }

// CompletionEvent is published after a warehouse load finishes.
type CompletionEvent struct {
	Table     string `json:"table"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

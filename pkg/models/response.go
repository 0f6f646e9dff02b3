package models

import "time"

// OutcomeStatus is the terminal state of a single action execution.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
	OutcomeTimeout OutcomeStatus = "timeout"
)

// ActionOutcome records the result of executing one action.
type ActionOutcome struct {
	Action        string        `json:"action"`
	Status        OutcomeStatus `json:"status"`
	Result        any           `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime float64       `json:"execution_time_s"`
	Timestamp     string        `json:"timestamp"`
}

// ResponseStatus is the overall outcome of one pipeline invocation.
type ResponseStatus string

const (
	StatusSuccess  ResponseStatus = "success"
	StatusPartial  ResponseStatus = "partial"
	StatusRejected ResponseStatus = "rejected"
	StatusError    ResponseStatus = "error"
)

// PipelineResponse is the single response emitted for a request.
//
// Invariants: a rejected response carries Reason and no Results;
// len(Results) <= len(Plan.Actions), equal unless stop-on-critical fired.
type PipelineResponse struct {
	RequestID string          `json:"request_id"`
	Status    ResponseStatus  `json:"status"`
	Plan      *Plan           `json:"plan,omitempty"`
	Results   []ActionOutcome `json:"results,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Now returns the current time formatted the way all pipeline timestamps are
// recorded: RFC3339 in UTC.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

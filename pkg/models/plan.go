package models

// SafetyLevel classifies how dangerous an action is.
type SafetyLevel string

const (
	SafetyLow      SafetyLevel = "low"
	SafetyMedium   SafetyLevel = "medium"
	SafetyHigh     SafetyLevel = "high"
	SafetyCritical SafetyLevel = "critical"
)

// Valid reports whether the level is one of the known safety levels.
func (l SafetyLevel) Valid() bool {
	switch l {
	case SafetyLow, SafetyMedium, SafetyHigh, SafetyCritical:
		return true
	}
	return false
}

// Action is a single tool invocation within a plan.
//
// Critical is an explicit flag set by the planner: a non-success outcome of
// a critical action halts further dispatch. It is independent of SafetyLevel,
// which drives validation and confirmation only.
type Action struct {
	Type        string         `json:"type"`
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments"`
	SafetyLevel SafetyLevel    `json:"safety_level"`
	Description string         `json:"description,omitempty"`
	Critical    bool           `json:"critical,omitempty"`
}

// Plan is a structured execution plan recovered from LLM output.
type Plan struct {
	Intent               string   `json:"intent"`
	Actions              []Action `json:"actions"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	EstimatedDuration    int      `json:"estimated_duration"`
	Error                string   `json:"error,omitempty"`
}

// ErrorIntent marks a plan produced by a failed parse.
const ErrorIntent = "error"

// IsError reports whether the plan is an error plan (parse failure threaded
// through the pipeline as a value).
func (p *Plan) IsError() bool {
	return p.Intent == ErrorIntent && p.Error != ""
}

// Verdict is the safety validator's decision for a whole plan.
type Verdict struct {
	Safe                 bool   `json:"safe"`
	Reason               string `json:"reason"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
}

package safety

import (
	"fmt"
	"strings"

	"github.com/nestor-ai/nestor/pkg/models"
)

// dangerousPatterns are substrings that make an execute_command argument
// unsafe regardless of policy.
var dangerousPatterns = []string{
	"rm -rf",
	"dd if=",
	"mkfs",
	"> /dev",
	":(){",
	"chmod -R 777 /",
}

// Validator applies the safety policy to plans. Pure after construction:
// validation performs no I/O and the same plan always yields the same
// verdict.
type Validator struct {
	allowed        map[string]struct{}
	sandboxEnabled bool
	maxActions     int
	policy         Policy
}

// NewValidator builds a validator from the allow-list, sandbox flag,
// concurrency cap, and loaded policy.
func NewValidator(allowedActions []string, sandboxEnabled bool, maxActions int, policy Policy) *Validator {
	allowed := make(map[string]struct{}, len(allowedActions))
	for _, a := range allowedActions {
		allowed[a] = struct{}{}
	}
	return &Validator{
		allowed:        allowed,
		sandboxEnabled: sandboxEnabled,
		maxActions:     maxActions,
		policy:         policy,
	}
}

// Validate checks a plan against the policy and returns exactly one verdict.
//
// Rules apply in order: per-action allow-list, sandbox requirement, and
// argument screening; then the plan-wide concurrency cap; then the
// confirmation requirement. An empty plan is trivially safe, which also
// covers error plans.
func (v *Validator) Validate(plan *models.Plan) models.Verdict {
	if len(plan.Actions) == 0 {
		return models.Verdict{Safe: true, Reason: "no actions"}
	}

	for _, a := range plan.Actions {
		if verdict, ok := v.validateAction(&a); !ok {
			return verdict
		}
	}

	if len(plan.Actions) > v.maxActions {
		return models.Verdict{
			Safe:   false,
			Reason: fmt.Sprintf("too many actions (%d > %d)", len(plan.Actions), v.maxActions),
		}
	}

	requiresConfirmation := false
	for _, a := range plan.Actions {
		if v.actionRequiresConfirmation(&a) {
			requiresConfirmation = true
			break
		}
	}

	return models.Verdict{
		Safe:                 true,
		Reason:               "ok",
		RequiresConfirmation: requiresConfirmation,
	}
}

func (v *Validator) validateAction(a *models.Action) (models.Verdict, bool) {
	if _, ok := v.allowed[a.Tool]; !ok {
		return models.Verdict{
			Safe:   false,
			Reason: fmt.Sprintf("'%s' not allowed", a.Tool),
		}, false
	}

	if a.SafetyLevel == models.SafetyCritical && !v.sandboxEnabled {
		return models.Verdict{
			Safe:   false,
			Reason: fmt.Sprintf("critical action '%s' requires sandbox", a.Tool),
		}, false
	}

	if verdict, ok := v.screenArguments(a); !ok {
		return verdict, false
	}

	return models.Verdict{}, true
}

// screenArguments applies tool-specific argument checks.
func (v *Validator) screenArguments(a *models.Action) (models.Verdict, bool) {
	if a.Tool != "execute_command" {
		return models.Verdict{}, true
	}

	command, _ := a.Arguments["command"].(string)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(command, pattern) {
			return models.Verdict{
				Safe:   false,
				Reason: fmt.Sprintf("dangerous command detected: %s", command),
			}, false
		}
	}
	return models.Verdict{}, true
}

// actionRequiresConfirmation reports whether policy or safety level demand
// user confirmation. The flag is advisory: the pipeline surfaces it but does
// not block execution on it.
func (v *Validator) actionRequiresConfirmation(a *models.Action) bool {
	if a.SafetyLevel == models.SafetyCritical {
		return true
	}
	if tp, ok := v.policy.lookup(a.Type, a.Tool); ok {
		return tp.RequiresConfirmation
	}
	return false
}

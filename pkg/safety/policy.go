// Package safety validates execution plans against the action policy.
package safety

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/nestor-ai/nestor/pkg/models"
)

// ToolPolicy refines the treatment of one tool within an action type.
type ToolPolicy struct {
	Level                models.SafetyLevel `yaml:"level"`
	RequiresConfirmation bool               `yaml:"requires_confirmation"`
}

// Policy maps action type → tool → policy. The built-in defaults are the
// specification; a policy file only refines them.
type Policy map[string]map[string]ToolPolicy

// DefaultPolicy returns the built-in permission table.
func DefaultPolicy() Policy {
	return Policy{
		"system_action": {
			"open_app":        {Level: models.SafetyLow},
			"close_app":       {Level: models.SafetyLow},
			"screenshot":      {Level: models.SafetyLow},
			"execute_command": {Level: models.SafetyCritical, RequiresConfirmation: true},
			"file_write":      {Level: models.SafetyHigh, RequiresConfirmation: true},
			"file_delete":     {Level: models.SafetyCritical, RequiresConfirmation: true},
		},
		"iot_action": {
			"toggle_light":    {Level: models.SafetyLow},
			"set_temperature": {Level: models.SafetyMedium},
			"unlock_door":     {Level: models.SafetyCritical, RequiresConfirmation: true},
		},
	}
}

// LoadPolicy returns the built-in defaults refined by the YAML file at path.
// A missing file is fine (defaults apply unchanged); a malformed file is a
// startup failure.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("Policy file not found, using built-in defaults", "path", path)
			return policy, nil
		}
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var user Policy
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	// User entries override built-ins key by key; unmentioned tools keep
	// their defaults.
	if err := mergo.Merge(&policy, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge policy file %s: %w", path, err)
	}

	slog.Info("Policy loaded", "path", path, "action_types", len(policy))
	return policy, nil
}

// lookup returns the policy entry for an action, if any.
func (p Policy) lookup(actionType, tool string) (ToolPolicy, bool) {
	tools, ok := p[actionType]
	if !ok {
		return ToolPolicy{}, false
	}
	tp, ok := tools[tool]
	return tp, ok
}

// Package planner recovers structured execution plans from free-form LLM
// output.
//
// The parser never fails: any input that cannot be coerced into a plan
// yields an error plan whose Error field carries a short machine-readable
// reason. The pipeline threads that value through instead of an exception.
package planner

import (
	"encoding/json"
	"strings"

	"github.com/nestor-ai/nestor/pkg/models"
)

// Parse failure reasons carried on error plans.
const (
	ReasonInvalidJSON  = "invalid_json"
	ReasonShapeInvalid = "shape_invalid"
	ReasonInternal     = "internal"
)

// rawPlan is the permissive decode target. Field presence is checked before
// defaults are applied, so a plan missing required fields is distinguishable
// from one carrying zero values.
type rawPlan struct {
	Intent               string      `json:"intent"`
	Actions              []rawAction `json:"actions"`
	RequiresConfirmation bool        `json:"requires_confirmation"`
	EstimatedDuration    int         `json:"estimated_duration"`
}

type rawAction struct {
	Type        string         `json:"type"`
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments"`
	SafetyLevel string         `json:"safety_level"`
	Description string         `json:"description"`
	Critical    bool           `json:"critical"`
}

// Parse recovers a Plan from LLM output. The text may wrap the JSON plan in
// a fenced code block; the first fence labelled `json` wins, then the first
// generic fence, then the raw text.
func Parse(text string) (plan *models.Plan) {
	// The parser must never panic into the pipeline; a bug here becomes an
	// internal error plan.
	defer func() {
		if r := recover(); r != nil {
			plan = errorPlan(ReasonInternal)
		}
	}()

	body := extractJSONBody(text)

	var raw rawPlan
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return errorPlan(ReasonInvalidJSON)
	}

	return coerce(&raw)
}

// extractJSONBody implements the fenced-block recovery rules.
func extractJSONBody(text string) string {
	if body, ok := extractFence(text, "```json"); ok {
		return body
	}
	if body, ok := extractFence(text, "```"); ok {
		return body
	}
	return strings.TrimSpace(text)
}

// extractFence returns the content of the first fenced block opened by
// marker, if the fence is properly closed.
func extractFence(text, marker string) (string, bool) {
	start := strings.Index(text, marker)
	if start == -1 {
		return "", false
	}
	start += len(marker)
	end := strings.Index(text[start:], "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(text[start : start+end]), true
}

// coerce validates the decoded shape and applies defaults.
func coerce(raw *rawPlan) *models.Plan {
	if raw.Intent == "" {
		return errorPlan(ReasonShapeInvalid)
	}

	actions := make([]models.Action, 0, len(raw.Actions))
	for _, ra := range raw.Actions {
		if ra.Type == "" || ra.Tool == "" {
			return errorPlan(ReasonShapeInvalid)
		}

		level := models.SafetyMedium
		if ra.SafetyLevel != "" {
			level = models.SafetyLevel(ra.SafetyLevel)
			if !level.Valid() {
				return errorPlan(ReasonShapeInvalid)
			}
		}

		args := ra.Arguments
		if args == nil {
			args = map[string]any{}
		}

		actions = append(actions, models.Action{
			Type:        ra.Type,
			Tool:        ra.Tool,
			Arguments:   args,
			SafetyLevel: level,
			Description: ra.Description,
			Critical:    ra.Critical,
		})
	}

	duration := raw.EstimatedDuration
	if duration < 0 {
		duration = 0
	}

	return &models.Plan{
		Intent:               raw.Intent,
		Actions:              actions,
		RequiresConfirmation: raw.RequiresConfirmation,
		EstimatedDuration:    duration,
	}
}

func errorPlan(reason string) *models.Plan {
	return &models.Plan{
		Intent:  models.ErrorIntent,
		Actions: []models.Action{},
		Error:   reason,
	}
}

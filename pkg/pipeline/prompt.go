package pipeline

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/nestor-ai/nestor/pkg/models"
)

// DefaultSystemPrompt is used when no system prompt file is configured or
// readable.
const DefaultSystemPrompt = "You are Nestor, an autonomous assistant. Generate a JSON execution plan."

// LoadSystemPrompt reads the planning system prompt from path, falling back
// to the built-in prompt when the file is absent.
func LoadSystemPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("System prompt file not available, using built-in prompt",
			"path", path, "error", err)
		return DefaultSystemPrompt
	}
	return strings.TrimSpace(string(data))
}

// memoryContext is the retrieved-context section of the planning prompt.
type memoryContext struct {
	RelevantMemories []models.MemoryHit `json:"relevant_memories"`
	UserPreferences  map[string]any     `json:"user_preferences"`
}

// buildPrompt assembles the planning prompt. The section headings are a
// contract with the LLM — prompt tuning depends on them — so their order and
// wording are fixed.
func buildPrompt(systemPrompt, content string, memCtx memoryContext, allowedActions []string, requestContext map[string]any) string {
	if requestContext == nil {
		requestContext = map[string]any{}
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n## User Request\n")
	b.WriteString(content)
	b.WriteString("\n\n## Relevant Context\n")
	b.WriteString(marshalSection(memCtx))
	b.WriteString("\n\n## Available Actions\n")
	b.WriteString(marshalSection(allowedActions))
	b.WriteString("\n\n## Current State\n")
	b.WriteString(marshalSection(requestContext))
	b.WriteString("\n\n## Your Task\nGenerate a JSON execution plan.")
	return b.String()
}

func marshalSection(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Package config loads the typed service configuration from the environment.
//
// All knobs have working defaults so a bare `nestor` starts against the
// default docker-compose topology. Validation collects every problem before
// failing so a broken deployment surfaces all mistakes at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the validated process configuration. Read-only after Load.
type Config struct {
	// API surface
	APIHost     string
	APIPort     int
	CORSOrigins []string

	// LLM collaborator
	LLMEndpoint    string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	// Other collaborators
	MemoryServiceURL  string
	ActionExecutorURL string

	// Safety and execution
	EnableSandbox        bool
	DryRunMode           bool
	MaxConcurrentActions int
	ActionTimeout        time.Duration
	AllowedActions       []string

	// Pipeline and lifecycle
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	WSMaxInflight  int

	// Prompt and policy files
	SystemPromptPath string
	PolicyPath       string

	// Audit
	AuditLogEnabled bool
	AuditLogPath    string

	LogLevel string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIHost:           getEnv("API_HOST", "0.0.0.0"),
		LLMEndpoint:       getEnv("LLM_ENDPOINT", "http://llm-agent:8003"),
		LLMModel:          getEnv("LLM_MODEL", "llama3.2:latest"),
		MemoryServiceURL:  getEnv("MEMORY_SERVICE_URL", "http://chromadb:8000"),
		ActionExecutorURL: getEnv("ACTION_EXECUTOR_URL", "http://action-executor:8006"),
		SystemPromptPath:  getEnv("SYSTEM_PROMPT_PATH", "/prompts/system_orchestrator.txt"),
		PolicyPath:        getEnv("POLICY_PATH", "/prompts/permissions.yml"),
		AuditLogPath:      getEnv("AUDIT_LOG_PATH", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		AllowedActions:    splitList(getEnv("ALLOWED_ACTIONS", "open_app,search_web,send_notification")),
	}

	var errs []string

	cfg.APIPort = parseInt("API_PORT", 8000, &errs)
	cfg.LLMTemperature = parseFloat("LLM_TEMPERATURE", 0.7, &errs)
	cfg.LLMMaxTokens = parseInt("LLM_MAX_TOKENS", 2048, &errs)
	cfg.EnableSandbox = parseBool("ENABLE_SANDBOX", true, &errs)
	cfg.DryRunMode = parseBool("DRY_RUN_MODE", false, &errs)
	cfg.MaxConcurrentActions = parseInt("MAX_CONCURRENT_ACTIONS", 5, &errs)
	cfg.ActionTimeout = time.Duration(parseInt("ACTION_TIMEOUT", 30, &errs)) * time.Second
	cfg.RequestTimeout = time.Duration(parseInt("REQUEST_TIMEOUT", 120, &errs)) * time.Second
	cfg.ShutdownGrace = time.Duration(parseInt("SHUTDOWN_GRACE", 10, &errs)) * time.Second
	cfg.AuditLogEnabled = parseBool("AUDIT_LOG_ENABLED", true, &errs)

	// K defaults to the action concurrency cap when unset.
	cfg.WSMaxInflight = parseInt("WS_MAX_INFLIGHT", cfg.MaxConcurrentActions, &errs)

	validate(cfg, &errs)

	if len(errs) > 0 {
		return nil, errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return cfg, nil
}

func validate(cfg *Config, errs *[]string) {
	if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		*errs = append(*errs, fmt.Sprintf("API_PORT out of range: %d", cfg.APIPort))
	}
	if cfg.LLMEndpoint == "" {
		*errs = append(*errs, "LLM_ENDPOINT must not be empty")
	}
	if cfg.MemoryServiceURL == "" {
		*errs = append(*errs, "MEMORY_SERVICE_URL must not be empty")
	}
	if cfg.ActionExecutorURL == "" {
		*errs = append(*errs, "ACTION_EXECUTOR_URL must not be empty")
	}
	if cfg.MaxConcurrentActions < 1 {
		*errs = append(*errs, fmt.Sprintf("MAX_CONCURRENT_ACTIONS must be positive: %d", cfg.MaxConcurrentActions))
	}
	if cfg.ActionTimeout <= 0 {
		*errs = append(*errs, "ACTION_TIMEOUT must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		*errs = append(*errs, "REQUEST_TIMEOUT must be positive")
	}
	if cfg.WSMaxInflight < 1 {
		*errs = append(*errs, fmt.Sprintf("WS_MAX_INFLIGHT must be positive: %d", cfg.WSMaxInflight))
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		*errs = append(*errs, fmt.Sprintf("LLM_TEMPERATURE out of range: %v", cfg.LLMTemperature))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int, errs *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: not an integer: %q", key, raw))
		return defaultValue
	}
	return v
}

func parseFloat(key string, defaultValue float64, errs *[]string) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: not a number: %q", key, raw))
		return defaultValue
	}
	return v
}

func parseBool(key string, defaultValue bool, errs *[]string) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: not a boolean: %q", key, raw))
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Nestor orchestrator server — turns natural-language requests into
// validated, executed action plans over HTTP and WebSocket.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nestor-ai/nestor/pkg/action"
	"github.com/nestor-ai/nestor/pkg/api"
	"github.com/nestor-ai/nestor/pkg/audit"
	"github.com/nestor-ai/nestor/pkg/config"
	"github.com/nestor-ai/nestor/pkg/executor"
	"github.com/nestor-ai/nestor/pkg/health"
	"github.com/nestor-ai/nestor/pkg/llm"
	"github.com/nestor-ai/nestor/pkg/memory"
	"github.com/nestor-ai/nestor/pkg/metrics"
	"github.com/nestor-ai/nestor/pkg/pipeline"
	"github.com/nestor-ai/nestor/pkg/safety"
	"github.com/nestor-ai/nestor/pkg/version"
	"github.com/nestor-ai/nestor/pkg/ws"
)

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	// Load .env before reading configuration
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, continuing with existing environment")
	}

	// 1. Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	slog.Info("Starting Nestor",
		"version", version.Full(),
		"host", cfg.APIHost,
		"port", cfg.APIPort)

	ctx := context.Background()

	// 2. Load safety policy (malformed policy is a startup failure)
	policy, err := safety.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		slog.Error("Failed to load safety policy", "error", err)
		os.Exit(2)
	}
	validator := safety.NewValidator(cfg.AllowedActions, cfg.EnableSandbox, cfg.MaxConcurrentActions, policy)

	// 3. Create collaborator clients
	llmClient := llm.NewClient(cfg.LLMEndpoint, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMMaxTokens)
	defer llmClient.Close()

	memoryClient := memory.NewClient(cfg.MemoryServiceURL)
	defer memoryClient.Close()

	actionClient := action.NewClient(cfg.ActionExecutorURL)
	defer actionClient.Close()
	slog.Info("Collaborator clients initialized",
		"llm", cfg.LLMEndpoint, "memory", cfg.MemoryServiceURL, "actions", cfg.ActionExecutorURL)

	// 4. Audit trail and metrics
	auditLog, err := audit.New(cfg.AuditLogPath, cfg.AuditLogEnabled)
	if err != nil {
		slog.Error("Failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := auditLog.Close(); err != nil {
			slog.Error("Error closing audit log", "error", err)
		}
	}()

	m := metrics.New()

	// 5. Assemble the pipeline
	systemPrompt := pipeline.LoadSystemPrompt(cfg.SystemPromptPath)
	exec := executor.New(cfg.ActionTimeout, cfg.DryRunMode)
	engine := pipeline.NewEngine(cfg, llmClient, memoryClient, validator, exec, actionClient, systemPrompt)
	engine.SetRecorder(auditLog)
	engine.SetObserver(m)
	slog.Info("Pipeline assembled",
		"allowed_actions", cfg.AllowedActions,
		"sandbox", cfg.EnableSandbox,
		"dry_run", cfg.DryRunMode)

	// 6. Start health monitor (background goroutine)
	healthMonitor := health.NewMonitor(map[string]health.Probe{
		"llm":             llmClient,
		"memory":          memoryClient,
		"action_executor": actionClient,
	}, health.DefaultCheckInterval)
	healthMonitor.Start(ctx)
	defer healthMonitor.Stop()

	// 7. WebSocket connection manager
	wsManager := ws.NewManager(engine, cfg.WSMaxInflight)
	wsManager.SetNotifier(m)

	// 8. Create and start the HTTP server (non-blocking)
	server := api.NewServer(cfg, engine, memoryClient, wsManager, auditLog, m, healthMonitor)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Nestor started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop accepting, let in-flight pipelines finish
	// within the grace window, then close the rest.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}
	wsManager.Shutdown()

	slog.Info("Nestor stopped")
}

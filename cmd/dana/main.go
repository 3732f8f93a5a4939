// Dana server: accepts dataset uploads, runs autonomous analysis
// sessions against an LLM, and streams progress over WebSocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/agent/strategy"
	"github.com/dana-ai/dana/pkg/api"
	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/events"
	"github.com/dana-ai/dana/pkg/llm"
	"github.com/dana-ai/dana/pkg/metrics"
	"github.com/dana-ai/dana/pkg/session"
	"github.com/dana-ai/dana/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting dana", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Metrics registry
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// 3. Event bus and WebSocket connection manager
	bus := events.NewBus(cfg.Events.BufferSize, m)
	connMgr := events.NewConnectionManager(bus, 10*time.Second, m)

	// 4. LLM client
	llmClient := llm.NewOpenAIClient(&cfg.LLM, m)
	slog.Info("LLM client initialized", "endpoint", llmClient.Describe())

	// 5. Agent engine and session manager
	engine := agent.NewEngine(cfg, bus, llmClient, strategy.NewFactory(), m)
	sessions := session.NewManager(cfg, bus, engine, m)

	// 6. Session reaper (background goroutine)
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go sessions.RunReaper(reaperCtx)

	// 7. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, sessions, connMgr, registry)
	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("dana started successfully",
		"mode", cfg.Agent.Mode,
		"max_iterations", cfg.Agent.MaxIterations)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop accepting requests, then cancel sessions.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if active := sessions.ActiveCount(); active > 0 {
		slog.Info("Cancelling active sessions", "count", active)
		sessions.StopAll()
	}
	stopReaper()

	slog.Info("Shutdown complete")
}

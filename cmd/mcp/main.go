package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/career-case-rag/internal/adapters/mcp"
	"github.com/kirillkom/career-case-rag/internal/bootstrap"
	"github.com/kirillkom/career-case-rag/internal/config"
	"github.com/kirillkom/career-case-rag/internal/observability/logging"
)

const (
	serviceName = "career-mcp"
	version     = "0.1.0"
)

// Stdout carries the MCP protocol, so logs go to stderr.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewLogger(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Lexical.Rebuild(ctx); err != nil {
		logger.Warn("lexical_initial_load_failed", "error", err)
	}

	s := mcpadapter.NewServer(mcpadapter.NewHandlers(app.QueryUC, app.QueryUC), version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_serve_failed", "error", err)
		os.Exit(1)
	}
}

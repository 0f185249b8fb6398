package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/career-case-rag/internal/adapters/http"
	"github.com/kirillkom/career-case-rag/internal/bootstrap"
	"github.com/kirillkom/career-case-rag/internal/config"
	"github.com/kirillkom/career-case-rag/internal/observability/logging"
)

const serviceName = "career-api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewLogger(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// A failed initial load leaves the lexical retriever disabled; dense retrieval still serves.
	if err := app.Lexical.Rebuild(ctx); err != nil {
		logger.Warn("lexical_initial_load_failed", "error", err)
	}
	go func() {
		if err := app.ReloadOnCorpusEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("corpus_events_subscribe_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Query:   app.QueryUC,
		Search:  app.QueryUC,
		History: app.HistoryUC,
		Lexical: app.Lexical,
		Cache:   app.Embedder,
		Metrics: app.HTTPMetrics,
	}).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RAGQueryTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

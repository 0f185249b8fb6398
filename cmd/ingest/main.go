package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/kirillkom/career-case-rag/internal/bootstrap"
	"github.com/kirillkom/career-case-rag/internal/config"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/corpusfile"
	"github.com/kirillkom/career-case-rag/internal/observability/logging"
)

const serviceName = "career-ingest"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	file := flag.String("file", cfg.LexicalCorpusPath, "corpus file (.json, .yaml or .xlsx)")
	partition := flag.String("partition", cfg.CorpusPartition, "target partition")
	replace := flag.Bool("replace", false, "drop the partition before indexing")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall ingest timeout")
	flag.Parse()

	logger := logging.NewLogger(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	records, err := corpusfile.NewLoader(*file).LoadRecords(ctx, *partition)
	if err != nil {
		fail("read corpus: %v", err)
	}

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		fail("bootstrap: %v", err)
	}
	defer app.Close()

	started := time.Now()
	report, err := app.IngestUC.Ingest(ctx, *partition, records, *replace)
	if err != nil {
		app.Close()
		fail("ingest: %v", err)
	}

	color.New(color.FgGreen, color.Bold).Printf("ingested %s\n", report.Partition)
	fmt.Printf("  received: %d\n", report.Received)
	fmt.Printf("  indexed:  %d\n", report.Indexed)
	if report.Skipped > 0 {
		color.Yellow("  skipped:  %d", report.Skipped)
	}
	fmt.Printf("  replaced: %t\n", report.Replaced)
	fmt.Printf("  took:     %s\n", time.Since(started).Round(time.Millisecond))
}

func fail(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Judge pipeline runner: fork, PR, comment, poll, report — one phase or all
// of them, resuming from persisted state.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wallofshame/gitranker/internal/coderabbit"
	"github.com/wallofshame/gitranker/internal/config"
	"github.com/wallofshame/gitranker/internal/github"
	"github.com/wallofshame/gitranker/internal/judge"
	"github.com/wallofshame/gitranker/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()
	phase := flag.String("phase", "all", "pipeline phase: fork, pr, comment, poll, report, or all")
	reportPath := flag.String("report", "coderabbit_report.json", "where the aggregate report is written")
	flag.Parse()

	if err := cfg.RequireAdminToken(); err != nil {
		slog.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Backend, cfg.DataDir, cfg.RawDataDir)
	if err != nil {
		slog.Error("Failed to open store", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	gh := github.NewRESTClient(cfg.GitHubAPIBase, cfg.AdminToken)

	var reporter judge.Reporter
	if cfg.CodeRabbitAPIKey != "" {
		reporter = coderabbit.NewClient(cfg.CodeRabbitAPIBase, cfg.CodeRabbitAPIKey)
	} else {
		slog.Warn("CODERABBIT_API_KEY not set, report phase will be skipped")
	}

	pipeline := judge.NewPipeline(gh, st, reporter, judge.Options{
		OrphanBranch: cfg.OrphanBranch,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		ReportPath:   *reportPath,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx, *phase); err != nil {
		slog.Error("Judge pipeline failed", "phase", *phase, "error", err)
		os.Exit(1)
	}
	slog.Info("Judge pipeline finished", "phase", *phase)
}

// Export runner: merges scraped profiles with judge verdicts, curves the
// grades, and writes the static JSON the frontend serves.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/wallofshame/gitranker/internal/config"
	"github.com/wallofshame/gitranker/internal/export"
	"github.com/wallofshame/gitranker/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()
	usersFile := flag.String("users", cfg.UsernamesFile, "roster file with judge:/org: role prefixes")
	output := flag.String("out", cfg.ExportFile, "output JSON path")
	flag.Parse()

	st, err := store.Open(cfg.Backend, cfg.DataDir, cfg.RawDataDir)
	if err != nil {
		slog.Error("Failed to open store", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	exporter := export.NewExporter(st, *usersFile, *output)
	if err := exporter.Run(); err != nil {
		slog.Error("Export failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Export complete", "output", *output)
}

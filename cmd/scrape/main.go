// Batch scraper: walks the roster file and scrapes every user, skipping
// those already in the store so an interrupted run resumes where it stopped.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallofshame/gitranker/internal/config"
	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/export"
	"github.com/wallofshame/gitranker/internal/github"
	"github.com/wallofshame/gitranker/internal/scrape"
	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/toxicity"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()
	usersFile := flag.String("users", cfg.UsernamesFile, "roster file, one username per line")
	force := flag.Bool("force", false, "re-scrape users already in the store")
	flag.Parse()

	if err := cfg.RequireTokens(); err != nil {
		slog.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	roster, err := export.ParseRoster(*usersFile)
	if err != nil {
		slog.Error("Failed to read roster", "path", *usersFile, "error", err)
		os.Exit(1)
	}
	if len(roster.Usernames) == 0 {
		slog.Error("Roster is empty", "path", *usersFile)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Backend, cfg.DataDir, cfg.RawDataDir)
	if err != nil {
		slog.Error("Failed to open store", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	pool := github.NewTokenPool(cfg.Tokens)
	gql := github.NewGraphQLClient(cfg.GraphQLURL, pool)
	scorer := toxicity.NewClient(cfg.ToxicityURL, cfg.ToxicityBatchSize)
	scraper := scrape.NewScraper(gql, scorer, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One user per second keeps the GraphQL secondary rate limits quiet even
	// with a large token pool.
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	var scraped, skipped, failed, missing int
	for _, username := range roster.Usernames {
		if ctx.Err() != nil {
			slog.Warn("Interrupted, stopping", "remaining", len(roster.Usernames)-scraped-skipped-failed-missing)
			break
		}

		if !*force {
			if _, ok, err := st.Profile(username); err == nil && ok {
				skipped++
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			break
		}

		slog.Info("Scraping user", "username", username)
		if _, err := scraper.ScrapeUser(ctx, username); err != nil {
			if errors.IsNotFound(err) {
				slog.Warn("User not found", "username", username)
				missing++
				continue
			}
			slog.Error("Scrape failed, continuing", "username", username, "error", err)
			failed++
			continue
		}
		scraped++
	}

	slog.Info("Batch scrape finished",
		"scraped", scraped,
		"skipped", skipped,
		"not_found", missing,
		"failed", failed,
		"total", len(roster.Usernames))

	if failed > 0 {
		os.Exit(1)
	}
}

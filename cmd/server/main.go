// The gitranker API server: on-demand GitHub profile scraping with toxicity
// analysis, backed by the same store the batch pipeline writes.
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

	"github.com/wallofshame/gitranker/internal/cache"
	"github.com/wallofshame/gitranker/internal/config"
	"github.com/wallofshame/gitranker/internal/github"
	"github.com/wallofshame/gitranker/internal/monitoring"
	"github.com/wallofshame/gitranker/internal/ratelimit"
	"github.com/wallofshame/gitranker/internal/scrape"
	"github.com/wallofshame/gitranker/internal/server"
	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/toxicity"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()
	if err := cfg.RequireTokens(); err != nil {
		slog.Error("Configuration error", "error", err)
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

	metrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, "", 0)
	if err != nil {
		// Already degraded to the in-memory fallback; keep going.
		slog.Warn("Redis unavailable", "error", err)
	}
	defer redisClient.Close()
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), metrics)

	srv := server.New(server.Deps{
		Scraper: scraper,
		Scorer:  scorer,
		Store:   st,
		Cache:   cache.New(cfg.CacheTTL),
		Limiter: limiter,
		Metrics: metrics,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Scrapes fan out to three GraphQL queries plus the classifier.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "port", cfg.Port, "backend", cfg.Backend, "tokens", pool.Size())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

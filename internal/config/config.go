package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the pipeline reads from the environment. It is
// constructed once at startup and passed by reference to every component —
// no ambient globals.
type Config struct {
	// GitHub credentials. Tokens is the read-only rotation pool used by the
	// scraper; AdminToken is the single write-capable PAT used for
	// fork/PR/comment operations.
	Tokens     []string
	AdminToken string

	// Review bot.
	CodeRabbitAPIKey  string
	CodeRabbitAPIBase string

	// Upstream endpoints. Overridable so tests can point at httptest servers.
	GitHubAPIBase string
	GraphQLURL    string

	// Toxicity classifier service.
	ToxicityURL       string
	ToxicityBatchSize int

	// Storage.
	Backend       string // "file" or "sqlite"
	DataDir       string
	RawDataDir    string
	UsernamesFile string
	ExportFile    string

	// Judge pipeline pacing.
	PollInterval time.Duration
	PollTimeout  time.Duration
	OrphanBranch string

	// HTTP service.
	Port      string
	RedisAddr string
	CacheTTL  time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment")
	}

	cfg := &Config{
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		CodeRabbitAPIKey:  os.Getenv("CODERABBIT_API_KEY"),
		CodeRabbitAPIBase: getEnvOrDefault("CODERABBIT_API_BASE", "https://api.coderabbit.ai/api/v1"),
		GitHubAPIBase:     getEnvOrDefault("GITHUB_API_BASE", "https://api.github.com"),
		GraphQLURL:        getEnvOrDefault("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		ToxicityURL:       getEnvOrDefault("TOXICITY_URL", "http://localhost:9090/score"),
		ToxicityBatchSize: getEnvInt("TOXICITY_BATCH_SIZE", 32),
		Backend:           getEnvOrDefault("STORAGE_BACKEND", "file"),
		DataDir:           getEnvOrDefault("DATA_DIR", "./data"),
		RawDataDir:        getEnvOrDefault("RAW_DATA_DIR", "./raw_data"),
		UsernamesFile:     getEnvOrDefault("USERNAMES_FILE", "usernames.txt"),
		ExportFile:        getEnvOrDefault("EXPORT_FILE", "frontend/public/data.json"),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 30*time.Second),
		PollTimeout:       getEnvDuration("POLL_TIMEOUT", 10*time.Minute),
		OrphanBranch:      getEnvOrDefault("ORPHAN_BRANCH", "wall-of-shame-baseline"),
		Port:              getEnvOrDefault("PORT", "8080"),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", ""),
		CacheTTL:          getEnvDuration("CACHE_TTL", 15*time.Minute),
	}

	for _, t := range strings.Split(os.Getenv("GITHUB_TOKENS"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.Tokens = append(cfg.Tokens, t)
		}
	}

	return cfg
}

// RequireTokens fails fast when the rotation pool is empty.
func (c *Config) RequireTokens() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("GITHUB_TOKENS not set: add comma-separated tokens to .env")
	}
	return nil
}

// RequireAdminToken fails fast when the write-capable PAT is missing.
func (c *Config) RequireAdminToken() error {
	if c.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN not set: add your GitHub PAT to .env")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

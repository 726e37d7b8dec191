package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/security"
	"github.com/wallofshame/gitranker/internal/toxicity"
	"github.com/wallofshame/gitranker/internal/types"
)

// backgroundTimeout bounds the deferred toxicity analysis a scrape can kick
// off after its response is sent.
const backgroundTimeout = 5 * time.Minute

type scrapeRequest struct {
	Username        string `json:"username"`
	AnalyzeToxicity bool   `json:"analyze_toxicity"`
}

type batchRequest struct {
	Usernames       []string `json:"usernames"`
	AnalyzeToxicity bool     `json:"analyze_toxicity"`
}

type userResponse struct {
	Username string            `json:"username"`
	Status   string            `json:"status"`
	Data     *types.UserRecord `json:"data,omitempty"`
	Toxicity *toxicity.Scores  `json:"toxicity,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "gitranker",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": gin.H{
			"POST /scrape":             "Scrape a GitHub user",
			"POST /scrape-batch":       "Scrape multiple users",
			"GET /user/:username":      "Get cached user data",
			"POST /toxicity/:username": "Re-run toxicity analysis",
			"DELETE /user/:username":   "Remove a user from the cache",
			"GET /stats":               "Service statistics",
		},
	})
}

// handleScrape scrapes one user on demand. When analyze_toxicity is set the
// detailed analysis runs after the response is sent, mirroring how long the
// classifier can take on a busy user's commit history.
func (s *Server) handleScrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("invalid request body"))
		return
	}

	username := strings.TrimSpace(req.Username)
	if err := security.ValidateUsername(username); err != nil {
		c.Error(errors.NewValidationError(err.Error()))
		return
	}

	rec, err := s.scraper.ScrapeUser(c.Request.Context(), username)
	if s.metrics != nil {
		s.metrics.IncrementScrape(err == nil)
	}
	if err != nil {
		c.Error(err)
		return
	}

	status := "success"
	if req.AnalyzeToxicity {
		status = "success_with_toxicity_pending"
		go s.deferredToxicity(username)
	}

	c.JSON(http.StatusOK, userResponse{
		Username: username,
		Status:   status,
		Data:     &rec,
	})
}

// handleScrapeBatch scrapes several users in order. Individual failures are
// reported per user and never abort the batch.
func (s *Server) handleScrapeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("invalid request body"))
		return
	}
	if len(req.Usernames) == 0 {
		c.Error(errors.NewValidationError("usernames cannot be empty"))
		return
	}

	results := make([]gin.H, 0, len(req.Usernames))
	for _, raw := range req.Usernames {
		username := strings.TrimSpace(raw)
		if err := security.ValidateUsername(username); err != nil {
			results = append(results, gin.H{"username": raw, "status": "invalid", "error": err.Error()})
			continue
		}

		_, err := s.scraper.ScrapeUser(c.Request.Context(), username)
		if s.metrics != nil {
			s.metrics.IncrementScrape(err == nil)
		}
		switch {
		case err == nil:
			results = append(results, gin.H{"username": username, "status": "success"})
			if req.AnalyzeToxicity {
				go s.deferredToxicity(username)
			}
		case errors.IsNotFound(err):
			results = append(results, gin.H{"username": username, "status": "not_found"})
		default:
			slog.Warn("Batch scrape failed for user", "username", username, "error", err)
			results = append(results, gin.H{"username": username, "status": "error", "error": err.Error()})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   len(req.Usernames),
		"results": results,
	})
}

func (s *Server) handleGetUser(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))

	rec, ok, err := s.store.Profile(username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to load profile", err))
		return
	}
	if !ok {
		c.Error(errors.NewNotFoundError("user"))
		return
	}

	c.JSON(http.StatusOK, userResponse{
		Username: username,
		Status:   "cached",
		Data:     &rec,
		Toxicity: rec.ToxicityDetail,
	})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))

	_, ok, err := s.store.Profile(username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to load profile", err))
		return
	}
	if !ok {
		c.Error(errors.NewNotFoundError("user"))
		return
	}

	if err := s.store.DeleteProfile(username); err != nil {
		c.Error(errors.NewInternalError("failed to delete profile", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "username": username})
}

// handleToxicity re-runs the detailed toxicity analysis synchronously over a
// user's stored commit messages.
func (s *Server) handleToxicity(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))

	_, ok, err := s.store.Profile(username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to load profile", err))
		return
	}
	if !ok {
		c.Error(errors.NewNotFoundError("user"))
		return
	}

	scores, err := s.analyzeToxicity(c.Request.Context(), username)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, userResponse{
		Username: username,
		Status:   "success",
		Toxicity: scores,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	profiles, err := s.store.Profiles()
	if err != nil {
		c.Error(errors.NewInternalError("failed to load profiles", err))
		return
	}

	usernames := make([]string, 0, len(profiles))
	withToxicity := 0
	for username, rec := range profiles {
		usernames = append(usernames, username)
		if rec.ToxicityDetail != nil {
			withToxicity++
		}
	}
	sort.Strings(usernames)

	stats := gin.H{
		"total_users_scraped":           len(profiles),
		"users_with_toxicity_analysis":  withToxicity,
		"users":                         usernames,
	}
	if s.metrics != nil {
		stats["metrics"] = s.metrics.GetStats()
	}
	if s.cache != nil {
		stats["cache"] = s.cache.Stats()
	}
	if s.limiter != nil {
		stats["rate_limit"] = s.limiter.GetStats()
	}

	c.JSON(http.StatusOK, stats)
}

// deferredToxicity is the fire-and-forget variant used after a scrape
// response has already been sent.
func (s *Server) deferredToxicity(username string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	if _, err := s.analyzeToxicity(ctx, username); err != nil {
		slog.Warn("Deferred toxicity analysis failed", "username", username, "error", err)
	}
}

// analyzeToxicity scores a user's stored commit messages and folds the
// result back into their profile record.
func (s *Server) analyzeToxicity(ctx context.Context, username string) (*toxicity.Scores, error) {
	commits, err := s.store.RawCommits(username)
	if err != nil {
		return nil, errors.NewInternalError("failed to load raw commits", err)
	}
	if len(commits) == 0 {
		return nil, errors.NewValidationError("no stored commits to analyze; scrape the user first")
	}

	scores := toxicity.Average(ctx, s.scorer, commits)

	rec, ok, err := s.store.Profile(username)
	if err != nil {
		return nil, errors.NewInternalError("failed to load profile", err)
	}
	if ok {
		rec.ToxicityDetail = &scores
		if err := s.store.SaveProfile(username, rec); err != nil {
			return nil, errors.NewInternalError("failed to save profile", err)
		}
	}

	return &scores, nil
}

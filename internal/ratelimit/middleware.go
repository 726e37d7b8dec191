package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// IPMiddleware enforces the global per-IP request budget. Limiter failures
// never block requests.
func (rl *RateLimiter) IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rl.AllowIP(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.Error("Rate limit check failed", "ip", c.ClientIP(), "error", err)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			rl.reject(c, result, "rate limit exceeded for IP")
			return
		}
		c.Next()
	}
}

// ScrapeMiddleware enforces the tighter scrape budget on scrape endpoints.
func (rl *RateLimiter) ScrapeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rl.AllowScrape(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.Error("Scrape rate limit check failed", "ip", c.ClientIP(), "error", err)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			rl.reject(c, result, "scrape rate limit exceeded")
			return
		}
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func (rl *RateLimiter) reject(c *gin.Context, result *Result, reason string) {
	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitHit()
	}

	c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       reason,
		"message":     fmt.Sprintf("You have exceeded the limit of %d requests per minute", result.Limit),
		"retry_after": int(result.RetryAfter.Seconds()),
		"reset_at":    result.ResetAt.Unix(),
	})
	c.Abort()
}

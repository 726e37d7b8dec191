// Package security holds the hardening pieces of the HTTP surface: response
// headers and validation of the usernames callers hand us before they reach
// the GitHub API.
package security

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// GitHub usernames: alphanumerics and single hyphens, must start and end
// alphanumeric, at most 39 characters.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)

// ValidateUsername rejects input that cannot be a GitHub username. Everything
// the scraper touches is interpolated into GraphQL variables and REST paths,
// so this runs before any upstream call.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !utf8.ValidString(username) || strings.ContainsRune(username, 0) {
		return fmt.Errorf("username contains invalid characters")
	}
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("invalid GitHub username format")
	}
	if strings.Contains(username, "--") || strings.HasSuffix(username, "-") {
		return fmt.Errorf("invalid GitHub username format")
	}
	return nil
}

// HeadersMiddleware adds security headers to all responses.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// Only meaningful behind HTTPS.
		if os.Getenv("ENABLE_HSTS") == "true" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		c.Next()
	}
}

// Package server is the HTTP surface over the scrape pipeline: on-demand
// scrapes, cached profile reads, deferred toxicity analysis, and service
// statistics.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/wallofshame/gitranker/internal/cache"
	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/monitoring"
	"github.com/wallofshame/gitranker/internal/ratelimit"
	"github.com/wallofshame/gitranker/internal/scrape"
	"github.com/wallofshame/gitranker/internal/security"
	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/toxicity"
)

// Deps carries the server's collaborators. Cache, Limiter, and Metrics are
// optional; a nil value simply leaves that middleware off, which tests use to
// exercise handlers in isolation.
type Deps struct {
	Scraper *scrape.Scraper
	Scorer  toxicity.Scorer
	Store   store.Store
	Cache   *cache.Cache
	Limiter *ratelimit.RateLimiter
	Metrics *monitoring.Metrics
}

// Server owns the gin router and its handlers.
type Server struct {
	scraper *scrape.Scraper
	scorer  toxicity.Scorer
	store   store.Store
	cache   *cache.Cache
	limiter *ratelimit.RateLimiter
	metrics *monitoring.Metrics
}

// New creates a Server from its dependencies.
func New(deps Deps) *Server {
	return &Server{
		scraper: deps.Scraper,
		scorer:  deps.Scorer,
		store:   deps.Store,
		cache:   deps.Cache,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
	}
}

// Router builds the gin engine with the full middleware stack.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if s.metrics != nil {
		router.Use(monitoring.Middleware(s.metrics))
	}
	router.Use(errors.ErrorHandler())
	router.Use(security.HeadersMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	if s.limiter != nil {
		router.Use(s.limiter.IPMiddleware())
	}

	router.GET("/", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.GET("/user/:username", s.handleGetUser)
	router.DELETE("/user/:username", s.handleDeleteUser)
	router.POST("/toxicity/:username", s.handleToxicity)

	scrapeHandlers := []gin.HandlerFunc{}
	if s.limiter != nil {
		scrapeHandlers = append(scrapeHandlers, s.limiter.ScrapeMiddleware())
	}
	if s.cache != nil {
		scrapeHandlers = append(scrapeHandlers, s.cache.Middleware("/scrape", s.metrics))
	}
	router.POST("/scrape", append(scrapeHandlers, s.handleScrape)...)

	batchHandlers := []gin.HandlerFunc{}
	if s.limiter != nil {
		batchHandlers = append(batchHandlers, s.limiter.ScrapeMiddleware())
	}
	router.POST("/scrape-batch", append(batchHandlers, s.handleScrapeBatch)...)

	return router
}

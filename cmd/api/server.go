package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mailaudit/internal/apperr"
	"mailaudit/internal/dmarc"
	"mailaudit/internal/dnscheck"
	"mailaudit/internal/models"
	"mailaudit/internal/phishing"
	"mailaudit/internal/queue"
	"mailaudit/internal/sitemap"
	"mailaudit/internal/spf"
	"mailaudit/internal/txtrecords"
)

const version = "1.0.0"

type emailValidator interface {
	Validate(ctx context.Context, email string, checkSMTP bool) (models.ValidationResult, error)
}

// auditStore is the persistence the API needs. A nil auditStore disables
// history, stats and bulk jobs.
type auditStore interface {
	Ping(ctx context.Context) error
	SaveValidation(ctx context.Context, res models.ValidationResult, clientIP string) error
	History(ctx context.Context, limit int) ([]models.ValidationRecord, error)
	Stats(ctx context.Context) (models.ValidationStats, error)
	CreateJob(ctx context.Context, total int) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	JobResults(ctx context.Context, id string) ([]models.JobResult, error)
}

type taskQueue interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, tasks ...queue.Task) error
}

type server struct {
	validator emailValidator
	spf       *spf.Checker
	dmarc     *dmarc.Checker
	txt       *txtrecords.Checker
	dns       *dnscheck.Checker
	blacklist *dnscheck.BlacklistChecker
	phishing  *phishing.Scorer
	sitemaps  *sitemap.Service

	store  auditStore
	queue  taskQueue
	apiKey string
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.CustomRecovery(recoverPanic), cors())

	r.GET("/health", s.health)
	r.GET("/info", s.info)

	emails := r.Group("/api/emails")
	emails.POST("/check", s.checkEmail)
	emails.GET("/history", s.history)
	emails.GET("/stats", s.stats)

	bulk := emails.Group("/bulk", requireAPIKey(s.apiKey))
	bulk.POST("", s.upload)
	bulk.GET("/status", s.jobStatus)
	bulk.GET("/results", s.jobResults)

	tools := r.Group("/api/tools")
	tools.POST("/spf-check", s.checkSPF)
	tools.POST("/dmarc-check", s.checkDMARC)
	tools.POST("/dns-check", s.checkDNS)
	tools.POST("/dns-record", s.checkDNSRecord)
	tools.POST("/txt-check", s.checkTXT)
	tools.POST("/blacklist-check", s.checkBlacklist)
	tools.POST("/header-analyze", s.analyzeHeaders)
	tools.POST("/phishing-check", s.checkPhishing)
	tools.POST("/generate-spf", s.generateSPF)

	seo := r.Group("/api/seo")
	seo.POST("/validate-sitemap", s.validateSitemap)
	seo.POST("/find-sitemap", s.findSitemap)
	seo.POST("/generate-sitemap", s.generateSitemap)

	return r
}

// fail writes the {error, details?} payload for err.
func fail(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil {
		c.Abort()
		return
	}

	kind := apperr.KindOf(err)
	status := apperr.Status(kind)
	body := gin.H{"error": err.Error()}

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Details != nil {
		body["details"] = ae.Details
	}
	if status >= http.StatusInternalServerError && kind == apperr.Internal {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		body["error"] = "Internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

// bind decodes the JSON body into dst, reporting a 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.Invalid("Invalid request body: %v", err))
		return false
	}
	return true
}

func unavailable(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": what + " is not configured"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	}
}

func recoverPanic(c *gin.Context, rec any) {
	id, _ := c.Get("request_id")
	log.Error().Interface("panic", rec).Interface("request_id", id).Str("path", c.Request.URL.Path).Msg("panic recovered")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// cors allows any origin. Restrict Access-Control-Allow-Origin when the
// frontend origin is fixed.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  version,
		"database": dependencyStatus(ctx, s.store),
		"queue":    dependencyStatus(ctx, s.queue),
	})
}

type pinger interface {
	Ping(ctx context.Context) error
}

func dependencyStatus(ctx context.Context, p pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "ok"
}

func (s *server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "Mail Audit API",
		"version": version,
		"capabilities": []string{
			"Email validation (syntax, MX, disposable, SMTP probe)",
			"SPF check and generation",
			"DMARC check",
			"DNS sweep and single-record queries",
			"TXT record classification",
			"DNSBL blacklist check",
			"Email header analysis",
			"Phishing URL scoring",
			"Sitemap validation, discovery and generation",
			"Bulk validation jobs",
		},
	})
}

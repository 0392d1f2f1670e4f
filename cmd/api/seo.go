package main

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
	"mailaudit/internal/sitemap"
)

func (s *server) validateSitemap(c *gin.Context) {
	var req struct {
		SitemapURL     string `json:"sitemap_url"`
		SitemapContent string `json:"sitemap_content"`
	}
	if !bind(c, &req) {
		return
	}

	switch {
	case strings.TrimSpace(req.SitemapURL) != "":
		res, err := s.sitemaps.ValidateURL(c.Request.Context(), req.SitemapURL)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	case req.SitemapContent != "":
		c.JSON(http.StatusOK, sitemap.Validate([]byte(req.SitemapContent)))
	default:
		fail(c, apperr.Invalid("Either sitemap_url or sitemap_content is required"))
	}
}

func (s *server) findSitemap(c *gin.Context) {
	var req domainRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.sitemaps.Find(c.Request.Context(), req.Domain)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// sitemapEntry accepts priority as either a JSON string or number.
type sitemapEntry struct {
	Loc        string `json:"loc"`
	LastMod    string `json:"lastmod"`
	ChangeFreq string `json:"changefreq"`
	Priority   any    `json:"priority"`
}

func (s *server) generateSitemap(c *gin.Context) {
	var req struct {
		URLs []sitemapEntry `json:"urls"`
	}
	if !bind(c, &req) {
		return
	}

	entries := make([]models.SitemapURL, 0, len(req.URLs))
	for _, u := range req.URLs {
		entries = append(entries, models.SitemapURL{
			Loc:        u.Loc,
			LastMod:    u.LastMod,
			ChangeFreq: u.ChangeFreq,
			Priority:   priorityText(u.Priority),
		})
	}

	res, err := sitemap.Generate(entries)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func priorityText(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case float64:
		if p == math.Trunc(p) {
			return strconv.FormatFloat(p, 'f', 1, 64)
		}
		return strconv.FormatFloat(p, 'f', -1, 64)
	default:
		return fmt.Sprint(p)
	}
}

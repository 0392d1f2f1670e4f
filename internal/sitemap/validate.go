// Package sitemap validates, discovers and generates sitemaps.org documents.
package sitemap

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mailaudit/internal/apperr"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
)

const (
	TypeURLSet       = "urlset"
	TypeSitemapIndex = "sitemap_index"

	MaxURLs      = 50000
	MaxSizeMB    = 50
	MaxURLLength = 2048

	previewLimit = 100

	validatorUA  = "Mozilla/5.0 (compatible; SitemapValidator/1.0)"
	fetchTimeout = 10 * time.Second
)

var changeFreqs = map[string]bool{
	"always": true, "hourly": true, "daily": true, "weekly": true,
	"monthly": true, "yearly": true, "never": true,
}

// Service runs the network-facing sitemap operations.
type Service struct {
	fetcher lookup.Fetcher
	fanout  int
}

func NewService(fetcher lookup.Fetcher, fanout int) *Service {
	if fanout <= 0 {
		fanout = 8
	}
	return &Service{fetcher: fetcher, fanout: fanout}
}

// ValidateURL fetches a sitemap and validates it. A fetch failure is reported
// as invalid input since the caller supplied an unreachable document.
func (s *Service) ValidateURL(ctx context.Context, rawURL string) (models.SitemapReport, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.SitemapReport{}, apperr.Invalid("Invalid sitemap URL: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	resp, err := s.fetcher.Get(ctx, rawURL, validatorUA)
	if err != nil {
		return models.SitemapReport{}, apperr.Wrap(apperr.InputInvalid, "Failed to fetch sitemap", err)
	}
	if resp.StatusCode >= 400 {
		return models.SitemapReport{}, apperr.Invalid("Failed to fetch sitemap: HTTP %d", resp.StatusCode)
	}

	report := Validate(resp.Body)
	report.URL = rawURL
	return report, nil
}

// Validate checks a sitemap or sitemap index document and scores it.
func Validate(content []byte) models.SitemapReport {
	r := models.SitemapReport{
		Type:            TypeURLSet,
		URLs:            []models.SitemapURL{},
		Errors:          []string{},
		Warnings:        []string{},
		Recommendations: []string{},
		ValidatedAt:     time.Now().UTC(),
	}
	sizeMB := float64(len(content)) / (1024 * 1024)
	r.TotalSizeMB = round2(sizeMB)

	root, err := parseTree(content)
	if err != nil {
		r.Errors = append(r.Errors, "Invalid XML syntax: "+err.Error())
		r.Score = score(&r, sizeMB, 0)
		r.Recommendations = recommendations(&r)
		return r
	}

	entries := 0
	switch root.XMLName.Local {
	case "sitemapindex":
		r.Type = TypeSitemapIndex
		entries = checkIndex(root, &r)
	case "urlset":
		entries = checkURLSet(root, &r)
	default:
		r.Errors = append(r.Errors, fmt.Sprintf("Unexpected root element <%s>, expected <urlset> or <sitemapindex>", root.XMLName.Local))
		entries = checkURLSet(root, &r)
	}

	if r.URLCount > MaxURLs {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Sitemap contains %d URLs. Maximum recommended is 50,000", r.URLCount))
	}
	if sizeMB > MaxSizeMB {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Sitemap size is %.2fMB. Maximum recommended is 50MB", sizeMB))
	}

	r.IsValid = len(r.Errors) == 0
	r.Score = score(&r, sizeMB, entries)
	r.Recommendations = recommendations(&r)
	return r
}

func checkURLSet(root *node, r *models.SitemapReport) int {
	var withLastMod, withPriority, withChangeFreq int

	for i, el := range root.findAll("url") {
		label := fmt.Sprintf("URL #%d", i+1)
		loc, ok := el.childText("loc")
		if !ok || loc == "" {
			r.Errors = append(r.Errors, label+": Missing <loc> element")
			continue
		}
		checkLoc(label, loc, r)

		entry := models.SitemapURL{Loc: loc}
		if v, ok := el.childText("lastmod"); ok && v != "" {
			entry.LastMod = v
			withLastMod++
		}
		if v, ok := el.childText("changefreq"); ok && v != "" {
			entry.ChangeFreq = v
			withChangeFreq++
			if !changeFreqs[v] {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s: Invalid changefreq value - %s", label, v))
			}
		}
		if v, ok := el.childText("priority"); ok && v != "" {
			entry.Priority = v
			withPriority++
			p, err := strconv.ParseFloat(v, 64)
			switch {
			case err != nil || math.IsNaN(p):
				r.Warnings = append(r.Warnings, label+": Invalid priority value")
			case p < 0 || p > 1:
				r.Warnings = append(r.Warnings, label+": Priority should be between 0.0 and 1.0")
			}
		}

		r.URLCount++
		if len(r.URLs) < previewLimit {
			r.URLs = append(r.URLs, entry)
		}
	}

	if r.URLCount > 0 {
		n := float64(r.URLCount)
		r.MetadataCoverage = models.MetadataCoverage{
			LastMod:    round2(100 * float64(withLastMod) / n),
			Priority:   round2(100 * float64(withPriority) / n),
			ChangeFreq: round2(100 * float64(withChangeFreq) / n),
		}
	}
	return r.URLCount
}

func checkIndex(root *node, r *models.SitemapReport) int {
	for i, el := range root.findAll("sitemap") {
		label := fmt.Sprintf("Sitemap #%d", i+1)
		loc, ok := el.childText("loc")
		if !ok || loc == "" {
			r.Errors = append(r.Errors, label+": Missing <loc> element")
			continue
		}
		checkLoc(label, loc, r)

		entry := models.SitemapURL{Loc: loc}
		if v, ok := el.childText("lastmod"); ok {
			entry.LastMod = v
		}
		r.SitemapCount++
		if len(r.URLs) < previewLimit {
			r.URLs = append(r.URLs, entry)
		}
	}
	return r.SitemapCount
}

func checkLoc(label, loc string, r *models.SitemapReport) {
	if !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://") {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: Invalid URL format - %s", label, loc))
	}
	if len(loc) > MaxURLLength {
		r.Warnings = append(r.Warnings, label+": URL exceeds 2048 characters")
	}
}

func score(r *models.SitemapReport, sizeMB float64, entries int) int {
	s := 100 - 20*len(r.Errors) - 5*len(r.Warnings)

	switch {
	case sizeMB > MaxSizeMB:
		s -= 15
	case sizeMB > 40:
		s -= 10
	}
	switch {
	case r.URLCount > MaxURLs:
		s -= 15
	case r.URLCount > 40000:
		s -= 10
	}
	if entries == 0 {
		s -= 50
	}

	if r.URLCount > 0 {
		c := r.MetadataCoverage
		avg := (c.LastMod + c.Priority + c.ChangeFreq) / 3
		switch {
		case avg > 80:
			s += 5
		case avg < 30:
			s -= 5
		}
	}
	return max(0, min(100, s))
}

func recommendations(r *models.SitemapReport) []string {
	var recs []string
	if len(r.Errors) > 0 {
		recs = append(recs, "Fix all errors before submitting to search engines")
	}
	if len(r.Warnings) > 0 {
		recs = append(recs, "Review warnings to improve sitemap quality")
	}
	if r.URLCount > 40000 {
		recs = append(recs, "Consider splitting sitemap into multiple files")
	}
	if r.Type == TypeSitemapIndex {
		if r.SitemapCount == 0 {
			recs = append(recs, "Add sitemaps to your sitemap index")
		}
	} else if r.URLCount == 0 {
		recs = append(recs, "Add URLs to your sitemap")
	}
	return append(recs,
		"Keep your sitemap updated regularly",
		"Submit sitemap to Google Search Console",
		"Add sitemap reference to robots.txt",
	)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package sitemap

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
)

type xmlURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []xmlURL `xml:"url"`
}

// Generate renders entries as a sitemaps.org urlset document.
func Generate(entries []models.SitemapURL) (models.GeneratedSitemap, error) {
	if len(entries) == 0 {
		return models.GeneratedSitemap{}, apperr.Invalid("URLs list is required")
	}

	set := xmlURLSet{XMLNS: Namespace, URLs: make([]xmlURL, 0, len(entries))}
	for i, e := range entries {
		loc := strings.TrimSpace(e.Loc)
		if !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://") {
			return models.GeneratedSitemap{}, apperr.Invalid("URL #%d: Invalid URL format - %s", i+1, loc)
		}
		set.URLs = append(set.URLs, xmlURL{
			Loc:        loc,
			LastMod:    strings.TrimSpace(e.LastMod),
			ChangeFreq: strings.TrimSpace(e.ChangeFreq),
			Priority:   strings.TrimSpace(e.Priority),
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return models.GeneratedSitemap{}, fmt.Errorf("render sitemap: %w", err)
	}

	return models.GeneratedSitemap{
		Sitemap:     xml.Header + string(out) + "\n",
		URLCount:    len(set.URLs),
		GeneratedAt: time.Now().UTC(),
		DownloadInstructions: []string{
			"Save this sitemap as sitemap.xml",
			"Upload it to your website root directory",
			"Submit it to Google Search Console",
			"Add sitemap URL to your robots.txt file",
		},
	}, nil
}

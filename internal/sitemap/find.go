package sitemap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
)

const (
	finderUA     = "Mozilla/5.0 (compatible; SitemapFinder/1.0)"
	probeTimeout = 5 * time.Second

	sourceRobots = "robots.txt"
	sourceCommon = "common location"
)

var commonPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap1.xml",
	"/sitemap-index.xml",
	"/sitemap/sitemap.xml",
	"/sitemaps/sitemap.xml",
}

type candidate struct {
	url    string
	source string
}

// Find looks for sitemaps declared in robots.txt and at the usual paths,
// then fetches each one that answers to classify it.
func (s *Service) Find(ctx context.Context, domain string) (models.SitemapSearch, error) {
	base, err := siteBase(domain)
	if err != nil {
		return models.SitemapSearch{}, err
	}

	res := models.SitemapSearch{
		Domain:   base.String(),
		Sitemaps: []models.FoundSitemap{},
		Checked:  []string{},
		Errors:   []string{},
	}

	declared, err := s.robotsSitemaps(ctx, base)
	if err != nil {
		if ctx.Err() != nil {
			return models.SitemapSearch{}, ctx.Err()
		}
		res.Errors = append(res.Errors, "Failed to check robots.txt: "+err.Error())
	}

	var cands []candidate
	seen := map[string]bool{}
	add := func(u, source string) {
		if !seen[u] {
			seen[u] = true
			cands = append(cands, candidate{url: u, source: source})
		}
	}
	for _, u := range declared {
		add(u, sourceRobots)
	}
	for _, p := range commonPaths {
		add(base.ResolveReference(&url.URL{Path: p}).String(), sourceCommon)
	}

	reachable := make([]bool, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, c := range cands {
		i, c := i, c
		res.Checked = append(res.Checked, c.url)
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, probeTimeout)
			defer cancel()
			code, err := s.fetcher.Head(pctx, c.url, finderUA)
			if err != nil {
				log.Debug().Err(err).Str("url", c.url).Msg("sitemap probe failed")
				return nil
			}
			reachable[i] = code == http.StatusOK
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return models.SitemapSearch{}, err
	}

	for i, c := range cands {
		if reachable[i] {
			res.Sitemaps = append(res.Sitemaps, models.FoundSitemap{URL: c.url, Source: c.source})
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i := range res.Sitemaps {
		i := i
		g.Go(func() error {
			s.describe(gctx, &res.Sitemaps[i])
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return models.SitemapSearch{}, err
	}

	res.Found = len(res.Sitemaps) > 0
	if res.Found {
		res.Message = fmt.Sprintf("Found %d sitemap(s)", len(res.Sitemaps))
		res.Recommendations = finderRecommendations(res.Sitemaps)
	} else {
		res.Message = "No sitemaps found"
		res.Recommendations = []string{
			"Create a sitemap.xml file for your website",
			"Add sitemap URL to robots.txt",
			"Submit sitemap to Google Search Console",
			"Use common sitemap locations like /sitemap.xml",
		}
	}
	return res, nil
}

func siteBase(domain string) (*url.URL, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, apperr.Invalid("Domain is required")
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	u, err := url.Parse(domain)
	if err != nil || u.Host == "" {
		return nil, apperr.Invalid("Invalid domain: %s", domain)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

func (s *Service) robotsSitemaps(ctx context.Context, base *url.URL) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := s.fetcher.Get(ctx, base.ResolveReference(&url.URL{Path: "/robots.txt"}).String(), finderUA)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	return parseRobots(resp.Body, base), nil
}

// parseRobots extracts Sitemap: directives, resolving relative values.
func parseRobots(body []byte, base *url.URL) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) < len("sitemap:") || !strings.EqualFold(line[:len("sitemap:")], "sitemap:") {
			continue
		}
		v := strings.TrimSpace(line[len("sitemap:"):])
		if v == "" {
			continue
		}
		ref, err := url.Parse(v)
		if err != nil {
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out
}

func (s *Service) describe(ctx context.Context, fs *models.FoundSitemap) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	resp, err := s.fetcher.Get(ctx, fs.URL, finderUA)
	if err != nil {
		fs.Error = err.Error()
		return
	}
	if resp.StatusCode != http.StatusOK {
		fs.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return
	}
	fs.SizeMB = round2(float64(len(resp.Body)) / (1024 * 1024))

	root, err := parseTree(resp.Body)
	if err != nil {
		fs.Type = "invalid_xml"
		fs.Error = "Failed to parse XML"
		return
	}
	if root.XMLName.Local == "sitemapindex" {
		fs.Type = TypeSitemapIndex
		fs.Count = len(root.findAll("sitemap"))
		return
	}
	fs.Type = TypeURLSet
	fs.Count = len(root.findAll("url"))
}

func finderRecommendations(found []models.FoundSitemap) []string {
	var recs []string
	hasIndex, hasRobots := false, false
	for _, f := range found {
		hasIndex = hasIndex || f.Type == TypeSitemapIndex
		hasRobots = hasRobots || f.Source == sourceRobots
	}
	if !hasRobots {
		recs = append(recs, "Add sitemap reference to robots.txt")
	}
	if hasIndex {
		recs = append(recs, "Sitemap index found - good for large sites")
	}
	for _, f := range found {
		if f.SizeMB > 40 {
			recs = append(recs, fmt.Sprintf("Sitemap %s is large - consider splitting", f.URL))
		}
		if f.Type == TypeURLSet && f.Count > 40000 {
			recs = append(recs, fmt.Sprintf("Sitemap %s has many URLs - consider splitting", f.URL))
		}
	}
	return append(recs,
		"Verify all sitemaps in Google Search Console",
		"Keep sitemaps updated regularly",
		"Monitor sitemap errors in search console",
	)
}

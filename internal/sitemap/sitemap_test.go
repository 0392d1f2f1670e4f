package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailaudit/internal/apperr"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
)

const emptyURLSet = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`

func TestValidateEmptyURLSet(t *testing.T) {
	r := Validate([]byte(emptyURLSet))

	assert.True(t, r.IsValid)
	assert.Equal(t, 50, r.Score)
	assert.Equal(t, 0, r.URLCount)
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
	assert.Contains(t, r.Recommendations, "Add URLs to your sitemap")
}

func TestValidateFullMetadata(t *testing.T) {
	doc := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc><lastmod>2024-01-01</lastmod><changefreq>daily</changefreq><priority>1.0</priority></url>
  <url><loc> https://example.com/about </loc><lastmod>2024-01-02</lastmod><changefreq>monthly</changefreq><priority>0.5</priority></url>
</urlset>`
	r := Validate([]byte(doc))

	assert.True(t, r.IsValid)
	assert.Equal(t, TypeURLSet, r.Type)
	assert.Equal(t, 2, r.URLCount)
	assert.Equal(t, 100, r.Score, "full coverage bonus is clamped at 100")
	assert.Equal(t, models.MetadataCoverage{LastMod: 100, Priority: 100, ChangeFreq: 100}, r.MetadataCoverage)
	require.Len(t, r.URLs, 2)
	assert.Equal(t, "https://example.com/about", r.URLs[1].Loc)
	assert.Equal(t, "0.5", r.URLs[1].Priority)
}

func TestValidateEntryProblems(t *testing.T) {
	doc := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><lastmod>2024-01-01</lastmod></url>
  <url><loc>ftp://example.com/file</loc></url>
  <url><loc>https://example.com/a</loc><changefreq>sometimes</changefreq></url>
  <url><loc>https://example.com/b</loc><priority>high</priority></url>
  <url><loc>https://example.com/c</loc><priority>1.5</priority></url>
  <url><loc>https://example.com/` + strings.Repeat("x", 2050) + `</loc></url>
</urlset>`
	r := Validate([]byte(doc))

	assert.False(t, r.IsValid)
	assert.Equal(t, 5, r.URLCount)
	assert.Equal(t, []string{
		"URL #1: Missing <loc> element",
		"URL #2: Invalid URL format - ftp://example.com/file",
	}, r.Errors)
	assert.Equal(t, []string{
		"URL #3: Invalid changefreq value - sometimes",
		"URL #4: Invalid priority value",
		"URL #5: Priority should be between 0.0 and 1.0",
		"URL #6: URL exceeds 2048 characters",
	}, r.Warnings)
	// 100 - 2*20 - 4*5, then -5 for coverage 0/40/20 averaging under 30%.
	assert.Equal(t, 35, r.Score)
	assert.Contains(t, r.Recommendations, "Fix all errors before submitting to search engines")
	assert.Contains(t, r.Recommendations, "Review warnings to improve sitemap quality")
}

func TestValidateWithoutNamespace(t *testing.T) {
	r := Validate([]byte(`<urlset><url><loc>https://example.com/</loc></url></urlset>`))
	assert.True(t, r.IsValid)
	assert.Equal(t, 1, r.URLCount)
	assert.Equal(t, 95, r.Score)
}

func TestValidateMalformedXML(t *testing.T) {
	r := Validate([]byte(`<urlset><url><loc>https://example.com/</url>`))
	assert.False(t, r.IsValid)
	require.Len(t, r.Errors, 1)
	assert.True(t, strings.HasPrefix(r.Errors[0], "Invalid XML syntax"))
	assert.Equal(t, 0, r.URLCount)
	// 100 - 20 (error) - 50 (no entries)
	assert.Equal(t, 30, r.Score)
}

func TestValidateIndex(t *testing.T) {
	doc := `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/posts.xml</loc><lastmod>2024-01-01</lastmod></sitemap>
  <sitemap><loc>https://example.com/pages.xml</loc></sitemap>
</sitemapindex>`
	r := Validate([]byte(doc))

	assert.True(t, r.IsValid)
	assert.Equal(t, TypeSitemapIndex, r.Type)
	assert.Equal(t, 2, r.SitemapCount)
	assert.Equal(t, 0, r.URLCount)
	assert.Equal(t, 100, r.Score)
}

func TestValidateTooManyURLs(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for i := 0; i < MaxURLs+1; i++ {
		fmt.Fprintf(&b, "<url><loc>https://example.com/%d</loc></url>", i)
	}
	b.WriteString(`</urlset>`)

	r := Validate([]byte(b.String()))
	assert.Equal(t, MaxURLs+1, r.URLCount)
	assert.Len(t, r.URLs, 100)
	assert.Equal(t, []string{"Sitemap contains 50001 URLs. Maximum recommended is 50,000"}, r.Warnings)
	// 100 - 5 (warning) - 15 (count) - 5 (no metadata)
	assert.Equal(t, 75, r.Score)
	assert.Contains(t, r.Recommendations, "Consider splitting sitemap into multiple files")
}

func TestValidateManyURLs(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for i := 0; i < 40001; i++ {
		fmt.Fprintf(&b, "<url><loc>https://example.com/%d</loc></url>", i)
	}
	b.WriteString(`</urlset>`)

	r := Validate([]byte(b.String()))
	assert.Equal(t, 40001, r.URLCount)
	assert.Empty(t, r.Warnings)
	// 100 - 10 (count) - 5 (no metadata)
	assert.Equal(t, 85, r.Score)
	assert.Contains(t, r.Recommendations, "Consider splitting sitemap into multiple files")
}

func TestScoreBands(t *testing.T) {
	tests := []struct {
		name   string
		sizeMB float64
		urls   int
		want   int
	}{
		{"small", 1, 10, 100},
		{"at 40MB", 40, 10, 100},
		{"over 40MB", 45, 10, 90},
		{"over 50MB", 55, 10, 85},
		{"40000 urls", 1, 40000, 100},
		{"40001 urls", 1, 40001, 90},
		{"50001 urls", 1, 50001, 85},
		{"both limits", 55, 50001, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Coverage at 50% keeps the metadata adjustment at zero.
			r := &models.SitemapReport{
				URLCount:         tt.urls,
				MetadataCoverage: models.MetadataCoverage{LastMod: 50, Priority: 50, ChangeFreq: 50},
			}
			assert.Equal(t, tt.want, score(r, tt.sizeMB, tt.urls))
		})
	}
}

func TestValidateURL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		if r.URL.Path == "/missing.xml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, emptyURLSet)
	}))
	defer srv.Close()

	svc := NewService(lookup.NewHTTPFetcher(nil, 0), 4)

	r, err := svc.ValidateURL(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/sitemap.xml", r.URL)
	assert.Equal(t, 50, r.Score)
	assert.Equal(t, validatorUA, gotUA)

	_, err = svc.ValidateURL(context.Background(), srv.URL+"/missing.xml")
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))

	_, err = svc.ValidateURL(context.Background(), "not a url")
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
}

func TestFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow:\nSitemap: /news.xml\n")
		case "/news.xml":
			fmt.Fprint(w, `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><sitemap><loc>https://example.com/a.xml</loc></sitemap></sitemapindex>`)
		case "/sitemap.xml":
			fmt.Fprint(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>https://example.com/</loc></url><url><loc>https://example.com/b</loc></url></urlset>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := NewService(lookup.NewHTTPFetcher(nil, 0), 4)
	res, err := svc.Find(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "Found 2 sitemap(s)", res.Message)
	assert.Len(t, res.Checked, 7)
	require.Len(t, res.Sitemaps, 2)

	assert.Equal(t, srv.URL+"/news.xml", res.Sitemaps[0].URL)
	assert.Equal(t, sourceRobots, res.Sitemaps[0].Source)
	assert.Equal(t, TypeSitemapIndex, res.Sitemaps[0].Type)
	assert.Equal(t, 1, res.Sitemaps[0].Count)

	assert.Equal(t, srv.URL+"/sitemap.xml", res.Sitemaps[1].URL)
	assert.Equal(t, sourceCommon, res.Sitemaps[1].Source)
	assert.Equal(t, TypeURLSet, res.Sitemaps[1].Type)
	assert.Equal(t, 2, res.Sitemaps[1].Count)

	assert.Contains(t, res.Recommendations, "Sitemap index found - good for large sites")
	assert.NotContains(t, res.Recommendations, "Add sitemap reference to robots.txt")
}

func TestFindNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res, err := NewService(lookup.NewHTTPFetcher(nil, 0), 2).Find(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, "No sitemaps found", res.Message)
	assert.Empty(t, res.Sitemaps)
	assert.Empty(t, res.Errors)

	_, err = NewService(nil, 0).Find(context.Background(), "  ")
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
}

func TestParseRobots(t *testing.T) {
	base, err := siteBase("example.com/some/page")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", base.String())

	got := parseRobots([]byte("SITEMAP: https://cdn.example.com/s.xml\nsitemap:/local.xml\nSitemap:\n# Sitemap: nope\n"), base)
	assert.Equal(t, []string{"https://cdn.example.com/s.xml", "https://example.com/local.xml"}, got)
}

func TestGenerate(t *testing.T) {
	out, err := Generate([]models.SitemapURL{
		{Loc: "https://example.com/", Priority: "1.0", ChangeFreq: "daily"},
		{Loc: "https://example.com/a&b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.URLCount)
	assert.True(t, strings.HasPrefix(out.Sitemap, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out.Sitemap, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, out.Sitemap, "<priority>1.0</priority>")
	assert.Contains(t, out.Sitemap, "https://example.com/a&amp;b")
	assert.NotContains(t, out.Sitemap, "<lastmod>")

	// The generated document must round-trip through the validator.
	r := Validate([]byte(out.Sitemap))
	assert.True(t, r.IsValid)
	assert.Equal(t, 2, r.URLCount)

	_, err = Generate(nil)
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
	_, err = Generate([]models.SitemapURL{{Loc: "example.com"}})
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
}

package models

import "time"

type HeaderSummary struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Date      string `json:"date"`
	MessageID string `json:"message_id"`
}

// AuthResults holds the verdict tokens; nil means the check was not reported.
type AuthResults struct {
	SPF   *string `json:"spf"`
	DKIM  *string `json:"dkim"`
	DMARC *string `json:"dmarc"`
}

type Hop struct {
	Hop    int    `json:"hop"`
	Server string `json:"server"`
	From   string `json:"from"`
	By     string `json:"by"`
	Date   string `json:"date"`
}

type HeaderSecurity struct {
	ReturnPath      string `json:"return_path"`
	ReplyTo         string `json:"reply_to"`
	XMailer         string `json:"x_mailer"`
	XOriginatingIP  string `json:"x_originating_ip"`
	ListUnsubscribe string `json:"list_unsubscribe"`
}

type HeaderAnalysis struct {
	Summary        HeaderSummary  `json:"summary"`
	Authentication AuthResults    `json:"authentication"`
	Routing        []Hop          `json:"routing"`
	Security       HeaderSecurity `json:"security"`
	Warnings       []string       `json:"warnings"`
	Errors         []string       `json:"errors"`
}

type URLAnalysis struct {
	Scheme                string `json:"scheme"`
	Domain                string `json:"domain"`
	RegisteredDomain      string `json:"registered_domain"`
	Path                  string `json:"path"`
	HasIP                 bool   `json:"has_ip"`
	HasSuspiciousTLD      bool   `json:"has_suspicious_tld"`
	HasSuspiciousKeywords bool   `json:"has_suspicious_keywords"`
	Length                int    `json:"length"`
	SubdomainCount        int    `json:"subdomain_count"`
}

type PhishingAssessment struct {
	URL       string      `json:"url"`
	RiskScore int         `json:"risk_score"`
	Threats   []string    `json:"threats"`
	Warnings  []string    `json:"warnings"`
	IsSafe    bool        `json:"is_safe"`
	Analysis  URLAnalysis `json:"analysis"`
}

type SitemapURL struct {
	Loc        string `json:"loc"`
	LastMod    string `json:"lastmod,omitempty"`
	ChangeFreq string `json:"changefreq,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

// MetadataCoverage holds the percentage (0-100) of entries carrying each
// optional field.
type MetadataCoverage struct {
	LastMod    float64 `json:"lastmod"`
	Priority   float64 `json:"priority"`
	ChangeFreq float64 `json:"changefreq"`
}

type SitemapReport struct {
	URL              string           `json:"url,omitempty"`
	Type             string           `json:"type"`
	IsValid          bool             `json:"is_valid"`
	URLCount         int              `json:"url_count"`
	SitemapCount     int              `json:"sitemap_count,omitempty"`
	URLs             []SitemapURL     `json:"urls"`
	Errors           []string         `json:"errors"`
	Warnings         []string         `json:"warnings"`
	Recommendations  []string         `json:"recommendations"`
	Score            int              `json:"score"`
	MetadataCoverage MetadataCoverage `json:"metadata_coverage"`
	TotalSizeMB      float64          `json:"total_size_mb"`
	ValidatedAt      time.Time        `json:"validated_at"`
}

type FoundSitemap struct {
	URL    string  `json:"url"`
	Source string  `json:"source"`
	Type   string  `json:"type,omitempty"`
	Count  int     `json:"count"`
	SizeMB float64 `json:"size_mb"`
	Error  string  `json:"error,omitempty"`
}

type SitemapSearch struct {
	Domain          string         `json:"domain"`
	Found           bool           `json:"found"`
	Sitemaps        []FoundSitemap `json:"sitemaps"`
	Checked         []string       `json:"checked_urls"`
	Errors          []string       `json:"errors"`
	Recommendations []string       `json:"recommendations"`
	Message         string         `json:"message"`
}

type GeneratedSitemap struct {
	Sitemap              string    `json:"sitemap"`
	URLCount             int       `json:"url_count"`
	GeneratedAt          time.Time `json:"generated_at"`
	DownloadInstructions []string  `json:"download_instructions"`
}

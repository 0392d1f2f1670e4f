// Package phishing scores URLs with static phishing heuristics.
package phishing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
)

const (
	threatWeight  = 20
	warningWeight = 5
	safeBelow     = 40

	maxURLLength     = 100
	maxSubdomainDots = 3
)

var DefaultSuspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".gq", ".pw", ".cc", ".top", ".xyz"}

var DefaultSuspiciousKeywords = []string{
	"verify", "account", "suspended", "locked", "confirm", "urgent",
	"security", "alert", "update", "login", "signin", "password",
	"banking", "paypal", "ebay", "amazon", "microsoft", "apple",
	"wallet", "credential", "unlock", "restore", "billing", "invoice", "recover",
}

var DefaultShorteners = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly",
	"is.gd", "buff.ly", "adf.ly", "bl.ink", "lnkd.in",
}

var ipv4HostRe = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// Scorer holds the heuristic lists. The zero value is not usable; use New.
type Scorer struct {
	tlds       []string
	keywords   []string
	shorteners []string
}

// New builds a Scorer, falling back to the default list for any empty one.
func New(tlds, keywords, shorteners []string) *Scorer {
	s := &Scorer{
		tlds:       lowerAll(tlds, DefaultSuspiciousTLDs),
		keywords:   lowerAll(keywords, DefaultSuspiciousKeywords),
		shorteners: lowerAll(shorteners, DefaultShorteners),
	}
	for i, t := range s.tlds {
		if !strings.HasPrefix(t, ".") {
			s.tlds[i] = "." + t
		}
	}
	return s
}

func lowerAll(list, def []string) []string {
	if len(list) == 0 {
		list = def
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Normalize adds http:// when the input carries no http(s) scheme.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	if i := strings.Index(raw, "://"); i > 0 && !strings.ContainsAny(raw[:i], "./") {
		return raw
	}
	return "http://" + raw
}

// Check scores a URL. Threats weigh 20 points and warnings 5, capped at 100;
// anything under 40 counts as safe.
func (s *Scorer) Check(raw string) (models.PhishingAssessment, error) {
	if strings.TrimSpace(raw) == "" {
		return models.PhishingAssessment{}, apperr.Invalid("url is required")
	}

	normalized := Normalize(raw)
	u, err := url.Parse(normalized)
	if err != nil || u.Hostname() == "" {
		return models.PhishingAssessment{}, apperr.Invalid("Invalid URL: %s", raw)
	}

	host := strings.ToLower(u.Hostname())
	lowerURL := strings.ToLower(normalized)

	res := models.PhishingAssessment{
		URL:      raw,
		Threats:  []string{},
		Warnings: []string{},
	}

	hasIP := ipv4HostRe.MatchString(host)
	if hasIP {
		res.Threats = append(res.Threats, "URL uses IP address instead of domain name")
	}

	hasTLD := s.hasSuspiciousTLD(host)
	if hasTLD {
		res.Warnings = append(res.Warnings, "Domain uses a commonly abused TLD")
	}

	found := s.keywordsIn(lowerURL)
	switch {
	case len(found) >= 2:
		shown := found
		if len(shown) > 3 {
			shown = shown[:3]
		}
		res.Threats = append(res.Threats, "Multiple suspicious keywords found: "+strings.Join(shown, ", "))
	case len(found) == 1:
		res.Warnings = append(res.Warnings, "Suspicious keyword found: "+found[0])
	}

	if len(normalized) > maxURLLength {
		res.Warnings = append(res.Warnings, "URL is unusually long (possible obfuscation)")
	}

	dots := strings.Count(host, ".")
	if dots > maxSubdomainDots {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Excessive subdomains (%d) - possible typosquatting", dots))
	}

	if strings.ToLower(u.Scheme) != "https" {
		res.Warnings = append(res.Warnings, "URL does not use HTTPS (unencrypted)")
	}

	if s.isShortener(host) {
		res.Warnings = append(res.Warnings, "URL uses a link shortener - destination unclear")
	}

	res.RiskScore = min(100, threatWeight*len(res.Threats)+warningWeight*len(res.Warnings))
	res.IsSafe = res.RiskScore < safeBelow

	registered := ""
	if !hasIP {
		registered, _ = publicsuffix.EffectiveTLDPlusOne(host)
	}
	res.Analysis = models.URLAnalysis{
		Scheme:                u.Scheme,
		Domain:                u.Host,
		RegisteredDomain:      registered,
		Path:                  u.Path,
		HasIP:                 hasIP,
		HasSuspiciousTLD:      hasTLD,
		HasSuspiciousKeywords: len(found) > 0,
		Length:                len(normalized),
		SubdomainCount:        dots,
	}
	return res, nil
}

func (s *Scorer) hasSuspiciousTLD(host string) bool {
	for _, tld := range s.tlds {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

func (s *Scorer) keywordsIn(lowerURL string) []string {
	var found []string
	for _, kw := range s.keywords {
		if strings.Contains(lowerURL, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func (s *Scorer) isShortener(host string) bool {
	for _, sh := range s.shorteners {
		if host == sh || strings.HasSuffix(host, "."+sh) {
			return true
		}
	}
	return false
}

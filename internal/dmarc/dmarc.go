// Package dmarc parses and checks DMARC policy records.
package dmarc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mailaudit/internal/apperr"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
)

var validPolicies = map[string]bool{"none": true, "quarantine": true, "reject": true}

// IsDMARC reports whether a TXT value is a DMARC version 1 record.
func IsDMARC(txt string) bool {
	t := strings.ToLower(strings.TrimSpace(txt))
	if !strings.HasPrefix(t, "v=dmarc1") {
		return false
	}
	rest := strings.TrimSpace(t[len("v=dmarc1"):])
	return rest == "" || strings.HasPrefix(rest, ";")
}

// ParseTags splits "tag=value; tag=value" into a map. Tag names are
// lowercased; parts without '=' are ignored and later duplicates win.
func ParseTags(record string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		tags[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return tags
}

func splitURIs(v string) []string {
	out := []string{}
	for _, u := range strings.Split(v, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Parse analyses a single DMARC record.
func Parse(raw string) models.DMARCRecord {
	rec := models.DMARCRecord{
		Raw:        raw,
		Percentage: 100,
		RUA:        []string{},
		RUF:        []string{},
		Alignment:  models.DMARCAlignment{DKIM: "r", SPF: "r"},
		Warnings:   []string{},
		Errors:     []string{},
	}
	tags := ParseTags(raw)

	p, ok := tags["p"]
	switch {
	case !ok || p == "":
		rec.Errors = append(rec.Errors, "Missing required policy tag (p)")
	case !validPolicies[strings.ToLower(p)]:
		rec.Errors = append(rec.Errors, fmt.Sprintf("Invalid policy '%s' - must be none, quarantine or reject", p))
	default:
		rec.Policy = strings.ToLower(p)
	}

	rec.SubdomainPolicy = rec.Policy
	if sp, ok := tags["sp"]; ok {
		if validPolicies[strings.ToLower(sp)] {
			rec.SubdomainPolicy = strings.ToLower(sp)
		} else {
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("Invalid subdomain policy '%s' - using the main policy", sp))
		}
	}

	if pct, ok := tags["pct"]; ok {
		n, err := strconv.Atoi(pct)
		switch {
		case err != nil:
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("Invalid pct value '%s' - assuming 100", pct))
		case n < 0:
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("pct value %d is out of range - using 0", n))
			rec.Percentage = 0
		case n > 100:
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("pct value %d is out of range - using 100", n))
		default:
			rec.Percentage = n
		}
	}

	if v, ok := tags["rua"]; ok {
		rec.RUA = splitURIs(v)
	}
	if v, ok := tags["ruf"]; ok {
		rec.RUF = splitURIs(v)
	}

	rec.Alignment.DKIM = alignment(tags, "adkim", &rec.Warnings)
	rec.Alignment.SPF = alignment(tags, "aspf", &rec.Warnings)

	rec.IsValid = len(rec.Errors) == 0
	if rec.IsValid {
		addPolicyWarnings(&rec)
	}
	return rec
}

func alignment(tags map[string]string, tag string, warnings *[]string) string {
	v, ok := tags[tag]
	if !ok {
		return "r"
	}
	switch strings.ToLower(v) {
	case "r", "s":
		return strings.ToLower(v)
	default:
		*warnings = append(*warnings, fmt.Sprintf("Invalid %s value '%s' - assuming relaxed", tag, v))
		return "r"
	}
}

func addPolicyWarnings(rec *models.DMARCRecord) {
	switch rec.Policy {
	case "none":
		rec.Warnings = append(rec.Warnings, "Policy is 'none' - emails are monitored but not protected")
	case "quarantine":
		rec.Warnings = append(rec.Warnings, "Policy is 'quarantine' - suspicious emails go to spam")
	}

	if len(rec.RUA) == 0 {
		rec.Warnings = append(rec.Warnings, "No aggregate report address (rua) specified - you won't receive reports")
	}
	if rec.Percentage < 100 {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("Policy applies to only %d%% of emails", rec.Percentage))
	}
	if rec.Alignment.DKIM == "r" {
		rec.Warnings = append(rec.Warnings, "DKIM alignment is relaxed - consider using strict mode (adkim=s)")
	}
	if rec.Alignment.SPF == "r" {
		rec.Warnings = append(rec.Warnings, "SPF alignment is relaxed - consider using strict mode (aspf=s)")
	}
	if len(rec.RUF) == 0 {
		rec.Warnings = append(rec.Warnings, "No forensic report address (ruf) specified")
	}
}

type Checker struct {
	resolver lookup.Resolver
}

func NewChecker(resolver lookup.Resolver) *Checker {
	return &Checker{resolver: resolver}
}

// Check queries _dmarc.<domain>. The returned error is only ever ctx's.
func (c *Checker) Check(ctx context.Context, domain string) (models.DMARCRecord, error) {
	empty := models.DMARCRecord{
		Domain:     domain,
		Percentage: 100,
		RUA:        []string{},
		RUF:        []string{},
		Alignment:  models.DMARCAlignment{DKIM: "r", SPF: "r"},
		Warnings:   []string{},
		Errors:     []string{},
	}

	name := "_dmarc." + domain
	txts, err := c.resolver.LookupTXT(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		empty.Errors = append(empty.Errors, describe(err, name))
		return empty, nil
	}

	var records []string
	for _, txt := range txts {
		if IsDMARC(txt) {
			records = append(records, txt)
		}
	}
	if len(records) == 0 {
		empty.Errors = append(empty.Errors, "No DMARC record found")
		return empty, nil
	}

	rec := Parse(records[0])
	rec.Domain = domain
	rec.HasDMARC = true
	if len(records) > 1 {
		rec.Warnings = append([]string{"Multiple DMARC records found (should be only one)"}, rec.Warnings...)
	}
	return rec, nil
}

func describe(err error, name string) string {
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		return fmt.Sprintf("DMARC domain %s does not exist", name)
	case errors.Is(err, lookup.ErrNoAnswer):
		return "No DMARC record found"
	case apperr.KindOf(err) == apperr.UpstreamTimeout:
		return "DNS query timeout"
	default:
		return "Error checking DMARC: " + err.Error()
	}
}

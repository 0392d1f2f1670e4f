// Package txtrecords sorts a domain's TXT records into SPF, DMARC, DKIM,
// verification and other buckets.
package txtrecords

import (
	"context"
	"errors"
	"sort"
	"strings"

	"mailaudit/internal/apperr"
	"mailaudit/internal/dmarc"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
	"mailaudit/internal/spf"
)

type verifier struct {
	prefix   string
	provider string
}

// Ordered; the first matching prefix names the provider.
var verifiers = []verifier{
	{"google-site-verification=", "Google"},
	{"ms=", "Microsoft"},
	{"facebook-domain-verification=", "Facebook"},
	{"adobe-idp-site-verification=", "Adobe"},
	{"docusign=", "DocuSign"},
	{"apple-domain-verification=", "Apple"},
}

var purposes = []struct {
	marker      string
	description string
}{
	{"_globalsign-domain-verification=", "GlobalSign domain verification"},
	{"globalsign-domain-verification=", "GlobalSign domain verification"},
	{"atlassian-domain-verification=", "Atlassian domain verification"},
	{"stripe-verification=", "Stripe verification"},
	{"protonmail-verification=", "ProtonMail verification"},
	{"have-i-been-pwned-verification=", "Have I Been Pwned verification"},
	{"have i been pwned", "Have I Been Pwned verification"},
	{"status-page-domain-verification=", "Status page verification"},
}

// Classify places one TXT value in exactly one category. Rules are tried in
// order: SPF, DMARC, DKIM, verification token, then other.
func Classify(txt string) models.ClassifiedTXT {
	lower := strings.ToLower(txt)

	switch {
	case spf.IsSPF(txt):
		return models.ClassifiedTXT{Record: txt, Category: models.CategorySPF, Type: "SPF", Description: "Sender Policy Framework record"}
	case dmarc.IsDMARC(txt):
		return models.ClassifiedTXT{Record: txt, Category: models.CategoryDMARC, Type: "DMARC", Description: "DMARC policy record"}
	case isDKIM(txt, lower):
		return models.ClassifiedTXT{Record: txt, Category: models.CategoryDKIM, Type: "DKIM", Description: "DKIM public key"}
	}

	for _, v := range verifiers {
		if strings.HasPrefix(lower, v.prefix) {
			return models.ClassifiedTXT{
				Record:      txt,
				Category:    models.CategoryVerification,
				Type:        v.provider,
				Description: v.provider + " domain verification",
			}
		}
	}

	return models.ClassifiedTXT{Record: txt, Category: models.CategoryOther, Type: "Other", Description: purpose(txt, lower)}
}

// isDKIM spots key records published at the apex or queried directly.
// "MIG" is the base64 prefix of a DER-encoded RSA public key.
func isDKIM(txt, lower string) bool {
	if strings.HasPrefix(lower, "v=dkim1") || strings.Contains(lower, "k=rsa") {
		return true
	}
	return strings.Contains(lower, "p=") && strings.Contains(txt, "MIG")
}

func purpose(txt, lower string) string {
	for _, p := range purposes {
		if strings.Contains(lower, p.marker) {
			return p.description
		}
	}
	if strings.HasPrefix(txt, "_") || strings.Contains(txt, "._") {
		return "Service configuration record"
	}
	return "Generic TXT record"
}

type Checker struct {
	resolver lookup.Resolver
}

func NewChecker(resolver lookup.Resolver) *Checker {
	return &Checker{resolver: resolver}
}

// Check classifies every TXT record on domain. Records are sorted so the
// output depends only on the record set, not on server answer order.
func (c *Checker) Check(ctx context.Context, domain string) (models.TXTClassification, error) {
	out := models.TXTClassification{
		Domain:       domain,
		TXTRecords:   []string{},
		SPF:          []models.ClassifiedTXT{},
		DMARC:        []models.ClassifiedTXT{},
		DKIM:         []models.ClassifiedTXT{},
		Verification: []models.ClassifiedTXT{},
		Other:        []models.ClassifiedTXT{},
		Warnings:     []string{},
		Errors:       []string{},
	}

	txts, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		switch {
		case errors.Is(err, lookup.ErrNoAnswer):
			out.Warnings = append(out.Warnings, "No TXT records found for this domain")
		case errors.Is(err, lookup.ErrNotFound):
			out.Errors = append(out.Errors, "Domain does not exist")
		case apperr.KindOf(err) == apperr.UpstreamTimeout:
			out.Errors = append(out.Errors, "DNS query timeout")
		default:
			out.Errors = append(out.Errors, "Error checking TXT records: "+err.Error())
		}
		return out, nil
	}

	sorted := append([]string(nil), txts...)
	sort.Strings(sorted)

	for _, txt := range sorted {
		out.TXTRecords = append(out.TXTRecords, txt)
		rec := Classify(txt)
		switch rec.Category {
		case models.CategorySPF:
			out.SPF = append(out.SPF, rec)
		case models.CategoryDMARC:
			out.DMARC = append(out.DMARC, rec)
		case models.CategoryDKIM:
			out.DKIM = append(out.DKIM, rec)
		case models.CategoryVerification:
			out.Verification = append(out.Verification, rec)
		default:
			out.Other = append(out.Other, rec)
		}
	}
	out.RecordCount = len(out.TXTRecords)
	out.HasTXT = out.RecordCount > 0
	return out, nil
}

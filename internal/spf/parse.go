// Package spf parses, checks and generates Sender Policy Framework records.
package spf

import (
	"fmt"
	"strings"

	"mailaudit/internal/models"
)

// LookupLimit is the RFC 7208 cap on DNS-querying terms.
const LookupLimit = 10

var qualifierNames = map[string]string{
	"+": "PASS",
	"-": "FAIL",
	"~": "SOFTFAIL",
	"?": "NEUTRAL",
}

var allPolicies = map[string]string{
	"+": "Pass (Accept all - NOT RECOMMENDED)",
	"-": "Fail (Reject all non-matching)",
	"~": "SoftFail (Mark as spam)",
	"?": "Neutral (No policy)",
}

// Term is one whitespace-separated SPF directive or modifier.
type Term struct {
	Qualifier string
	Name      string
	Value     string
	Raw       string
}

// IsSPF reports whether a TXT value is an SPF version 1 record.
func IsSPF(txt string) bool {
	fields := strings.Fields(txt)
	return len(fields) > 0 && strings.EqualFold(fields[0], "v=spf1")
}

// Tokenize splits a record into terms, skipping the version tag.
func Tokenize(record string) []Term {
	fields := strings.Fields(record)
	if len(fields) > 0 && strings.EqualFold(fields[0], "v=spf1") {
		fields = fields[1:]
	}

	terms := make([]Term, 0, len(fields))
	for _, f := range fields {
		t := Term{Qualifier: "+", Raw: f}
		body := f
		if strings.ContainsAny(body[:1], "+-~?") {
			t.Qualifier = body[:1]
			body = body[1:]
		}

		name := body
		if i := strings.IndexAny(body, ":/="); i >= 0 {
			name = body[:i]
			t.Value = strings.TrimLeft(body[i:], ":=")
		}
		t.Name = strings.ToLower(name)
		terms = append(terms, t)
	}
	return terms
}

// Mechanism returns the term without its explicit qualifier.
func (t Term) Mechanism() string {
	return strings.TrimLeft(t.Raw, "+-~?")
}

// CostsLookup reports whether the term is counted against the lookup limit.
func (t Term) CostsLookup() bool {
	return t.Name == "include" || t.Name == "a" || t.Name == "mx"
}

// Describe renders a term for people, e.g. "FAIL: Allow IPv4 192.0.2.0/24".
func (t Term) Describe() string {
	q := qualifierNames[t.Qualifier]
	switch t.Name {
	case "ip4":
		return fmt.Sprintf("%s: Allow IPv4 %s", q, t.Value)
	case "ip6":
		return fmt.Sprintf("%s: Allow IPv6 %s", q, t.Value)
	case "a":
		if t.Value != "" && !strings.HasPrefix(t.Value, "/") {
			return fmt.Sprintf("%s: Allow A record of %s", q, t.Value)
		}
		return q + ": Allow domain's A record"
	case "mx":
		if t.Value != "" && !strings.HasPrefix(t.Value, "/") {
			return fmt.Sprintf("%s: Allow MX servers of %s", q, t.Value)
		}
		return q + ": Allow domain's MX servers"
	case "include":
		return fmt.Sprintf("%s: Include SPF from %s", q, t.Value)
	case "all":
		return q + ": Default policy"
	case "ptr":
		return q + ": Allow hosts by reverse DNS (deprecated)"
	case "exists":
		return fmt.Sprintf("%s: Allow if %s resolves", q, t.Value)
	case "redirect":
		return "Use SPF policy of " + t.Value
	case "exp":
		return "Explanation text from " + t.Value
	default:
		return fmt.Sprintf("%s: %s", q, t.Mechanism())
	}
}

var knownTerms = map[string]bool{
	"ip4": true, "ip6": true, "a": true, "mx": true, "include": true,
	"all": true, "ptr": true, "exists": true, "redirect": true, "exp": true,
}

// Parse analyses a single SPF record. It fills everything except the
// domain-level fields (domain, has_spf, multiple-record warning).
func Parse(raw string) models.SPFRecord {
	rec := models.SPFRecord{
		Raw:        raw,
		SPFVersion: "spf1",
		Mechanisms: []models.SPFMechanism{},
		Warnings:   []string{},
		Errors:     []string{},
		IsValid:    true,
	}

	ptrWarned := false
	for _, t := range Tokenize(raw) {
		rec.Mechanisms = append(rec.Mechanisms, models.SPFMechanism{
			Qualifier:   t.Qualifier,
			Mechanism:   t.Mechanism(),
			Description: t.Describe(),
		})

		if t.CostsLookup() {
			rec.DNSLookupCount++
		}

		switch {
		case t.Name == "all":
			rec.AllMechanism = &models.SPFAllMechanism{
				Qualifier: t.Qualifier,
				Policy:    allPolicies[t.Qualifier],
			}
		case t.Name == "ptr" && !ptrWarned:
			rec.Warnings = append(rec.Warnings, "'ptr' mechanism is deprecated and should be avoided")
			ptrWarned = true
		case !knownTerms[t.Name]:
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("Unknown mechanism '%s'", t.Mechanism()))
		}
	}

	if rec.AllMechanism == nil {
		rec.Warnings = append(rec.Warnings, "No 'all' mechanism found - policy incomplete")
	} else if rec.AllMechanism.Qualifier == "+" {
		rec.Warnings = append(rec.Warnings, "'+all' lets any server send mail for this domain - use '~all' or '-all'")
	}

	if rec.DNSLookupCount > LookupLimit {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("Too many DNS lookups (%d). SPF limit is %d.", rec.DNSLookupCount, LookupLimit))
	}
	return rec
}

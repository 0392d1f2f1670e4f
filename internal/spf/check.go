package spf

import (
	"context"
	"errors"

	"mailaudit/internal/apperr"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
)

type Checker struct {
	resolver lookup.Resolver
}

func NewChecker(resolver lookup.Resolver) *Checker {
	return &Checker{resolver: resolver}
}

// Check looks up and analyses the SPF record of domain. DNS problems are
// reported in the result's errors; the returned error is only ever ctx's.
func (c *Checker) Check(ctx context.Context, domain string) (models.SPFRecord, error) {
	empty := models.SPFRecord{
		Domain:     domain,
		Mechanisms: []models.SPFMechanism{},
		Warnings:   []string{},
		Errors:     []string{},
	}

	txts, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		empty.Errors = append(empty.Errors, describe(err))
		return empty, nil
	}

	var records []string
	for _, txt := range txts {
		if IsSPF(txt) {
			records = append(records, txt)
		}
	}
	if len(records) == 0 {
		empty.Errors = append(empty.Errors, "No SPF record found")
		return empty, nil
	}

	rec := Parse(records[0])
	rec.Domain = domain
	rec.HasSPF = true
	if len(records) > 1 {
		rec.Warnings = append([]string{"Multiple SPF records found (RFC violation)"}, rec.Warnings...)
	}
	return rec, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		return "Domain does not exist"
	case errors.Is(err, lookup.ErrNoAnswer):
		return "No DNS answer for domain"
	case apperr.KindOf(err) == apperr.UpstreamTimeout:
		return "DNS query timeout"
	default:
		return "Error checking SPF: " + err.Error()
	}
}

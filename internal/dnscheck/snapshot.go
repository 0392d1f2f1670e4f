// Package dnscheck captures DNS snapshots and checks DNS blacklists.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mailaudit/internal/apperr"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
)

// Checker runs multi-query DNS checks with bounded parallelism.
type Checker struct {
	resolver lookup.Resolver
	fanout   int
}

func NewChecker(resolver lookup.Resolver, fanout int) *Checker {
	if fanout <= 0 {
		fanout = 8
	}
	return &Checker{resolver: resolver, fanout: fanout}
}

// isAbsent reports whether err is a plain "nothing there" answer.
func isAbsent(err error) bool {
	return errors.Is(err, lookup.ErrNotFound) || errors.Is(err, lookup.ErrNoAnswer)
}

// Snapshot queries all seven record types concurrently. Failures of the
// required types (MX, NS, SOA) are listed in Errors. Optional types (A, AAAA,
// TXT, CNAME) come back empty when absent; any other failure of an optional
// type is kept apart in SoftErrors. A cancelled ctx discards everything.
func (c *Checker) Snapshot(ctx context.Context, domain string) (*models.DNSSnapshot, error) {
	snap := &models.DNSSnapshot{
		Domain:       domain,
		ARecords:     []string{},
		AAAARecords:  []string{},
		MXRecords:    []lookup.MXRecord{},
		TXTRecords:   []string{},
		CNAMERecords: []string{},
		NSRecords:    []string{},
		Errors:       []string{},
	}

	var aErr, aaaaErr, txtErr, cnameErr, mxErr, nsErr, soaErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanout)

	g.Go(func() error {
		var recs []string
		recs, aErr = c.resolver.LookupA(gctx, domain)
		if aErr == nil {
			snap.ARecords = recs
		}
		return nil
	})
	g.Go(func() error {
		var recs []string
		recs, aaaaErr = c.resolver.LookupAAAA(gctx, domain)
		if aaaaErr == nil {
			snap.AAAARecords = recs
		}
		return nil
	})
	g.Go(func() error {
		var recs []string
		recs, txtErr = c.resolver.LookupTXT(gctx, domain)
		if txtErr == nil {
			snap.TXTRecords = recs
		}
		return nil
	})
	g.Go(func() error {
		var recs []string
		recs, cnameErr = c.resolver.LookupCNAME(gctx, domain)
		if cnameErr == nil {
			snap.CNAMERecords = recs
		}
		return nil
	})
	g.Go(func() error {
		var recs []lookup.MXRecord
		recs, mxErr = c.resolver.LookupMX(gctx, domain)
		if mxErr == nil {
			lookup.SortMX(recs)
			snap.MXRecords = recs
		}
		return nil
	})
	g.Go(func() error {
		var recs []string
		recs, nsErr = c.resolver.LookupNS(gctx, domain)
		if nsErr == nil {
			snap.NSRecords = recs
		}
		return nil
	})
	g.Go(func() error {
		snap.SOARecord, soaErr = c.resolver.LookupSOA(gctx, domain)
		return nil
	})

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	required := []struct {
		label string
		rtype string
		err   error
	}{
		{"MX records", "MX", mxErr},
		{"NS records", "NS", nsErr},
		{"SOA record", "SOA", soaErr},
	}
	for _, r := range required {
		if r.err != nil {
			snap.Errors = append(snap.Errors, fmt.Sprintf("%s: %s", r.label, lookup.Describe(r.err, r.rtype)))
		}
	}

	optional := []struct {
		rtype string
		err   error
	}{
		{"A", aErr}, {"AAAA", aaaaErr}, {"TXT", txtErr}, {"CNAME", cnameErr},
	}
	for _, o := range optional {
		if o.err == nil || isAbsent(o.err) {
			continue
		}
		if snap.SoftErrors == nil {
			snap.SoftErrors = map[string]string{}
		}
		snap.SoftErrors[o.rtype] = lookup.Describe(o.err, o.rtype)
		log.Debug().Err(o.err).Str("domain", domain).Str("type", o.rtype).Msg("optional record lookup failed")
	}

	return snap, nil
}

// RecordTypes lists the types QueryRecord accepts.
var RecordTypes = []string{"A", "AAAA", "MX", "TXT", "CNAME", "NS", "SOA"}

// QueryRecord answers a single record-type query, reporting lookup failures in
// the result's Error field.
func (c *Checker) QueryRecord(ctx context.Context, domain, recordType string) (*models.DNSRecordResult, error) {
	rtype := strings.ToUpper(strings.TrimSpace(recordType))
	res := &models.DNSRecordResult{Domain: domain, RecordType: rtype, Records: []any{}}

	var err error
	switch rtype {
	case "A":
		err = appendStrings(res, c.resolver.LookupA)(ctx, domain)
	case "AAAA":
		err = appendStrings(res, c.resolver.LookupAAAA)(ctx, domain)
	case "TXT":
		err = appendStrings(res, c.resolver.LookupTXT)(ctx, domain)
	case "CNAME":
		err = appendStrings(res, c.resolver.LookupCNAME)(ctx, domain)
	case "NS":
		err = appendStrings(res, c.resolver.LookupNS)(ctx, domain)
	case "MX":
		var mx []lookup.MXRecord
		if mx, err = c.resolver.LookupMX(ctx, domain); err == nil {
			lookup.SortMX(mx)
			for _, r := range mx {
				res.Records = append(res.Records, r)
			}
		}
	case "SOA":
		var soa *lookup.SOARecord
		if soa, err = c.resolver.LookupSOA(ctx, domain); err == nil {
			res.Records = append(res.Records, soa)
		}
	default:
		return nil, apperr.Invalid("Unsupported record type %q: use one of %s", recordType, strings.Join(RecordTypes, ", "))
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Error = describeRecordErr(err, rtype)
	}
	return res, nil
}

func appendStrings(res *models.DNSRecordResult, fn func(context.Context, string) ([]string, error)) func(context.Context, string) error {
	return func(ctx context.Context, domain string) error {
		recs, err := fn(ctx, domain)
		if err != nil {
			return err
		}
		for _, r := range recs {
			res.Records = append(res.Records, r)
		}
		return nil
	}
}

func describeRecordErr(err error, rtype string) string {
	msg := lookup.Describe(err, rtype)
	return strings.TrimPrefix(msg, "DNS error: ")
}

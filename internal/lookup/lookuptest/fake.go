// Package lookuptest provides an in-memory lookup.Resolver for tests.
package lookuptest

import (
	"context"
	"strings"
	"sync"

	"mailaudit/internal/lookup"
)

// Resolver serves canned records. A name with no records of any type answers
// NXDOMAIN; a known name without the requested type answers NoAnswer. Errors
// keyed by "TYPE name" (e.g. "AAAA example.com") take precedence.
type Resolver struct {
	A     map[string][]string
	AAAA  map[string][]string
	MX    map[string][]lookup.MXRecord
	TXT   map[string][]string
	CNAME map[string][]string
	NS    map[string][]string
	SOA   map[string]*lookup.SOARecord

	Errors map[string]error

	mu    sync.Mutex
	calls []string
}

func New() *Resolver {
	return &Resolver{
		A:      map[string][]string{},
		AAAA:   map[string][]string{},
		MX:     map[string][]lookup.MXRecord{},
		TXT:    map[string][]string{},
		CNAME:  map[string][]string{},
		NS:     map[string][]string{},
		SOA:    map[string]*lookup.SOARecord{},
		Errors: map[string]error{},
	}
}

// Calls returns every query made so far, as "TYPE name".
func (r *Resolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Resolver) record(ctx context.Context, qtype, name string) (string, error) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	key := qtype + " " + name

	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return name, err
	}
	if err, ok := r.Errors[key]; ok {
		return name, err
	}
	return name, nil
}

func (r *Resolver) known(name string) bool {
	return len(r.A[name]) > 0 || len(r.AAAA[name]) > 0 || len(r.MX[name]) > 0 ||
		len(r.TXT[name]) > 0 || len(r.CNAME[name]) > 0 || len(r.NS[name]) > 0 || r.SOA[name] != nil
}

func (r *Resolver) missing(name string) error {
	if r.known(name) {
		return lookup.ErrNoAnswer
	}
	return lookup.ErrNotFound
}

func (r *Resolver) stringRecords(ctx context.Context, m map[string][]string, qtype, name string) ([]string, error) {
	name, err := r.record(ctx, qtype, name)
	if err != nil {
		return nil, err
	}
	if v := m[name]; len(v) > 0 {
		return append([]string(nil), v...), nil
	}
	return nil, r.missing(name)
}

func (r *Resolver) LookupA(ctx context.Context, name string) ([]string, error) {
	return r.stringRecords(ctx, r.A, "A", name)
}

func (r *Resolver) LookupAAAA(ctx context.Context, name string) ([]string, error) {
	return r.stringRecords(ctx, r.AAAA, "AAAA", name)
}

func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return r.stringRecords(ctx, r.TXT, "TXT", name)
}

func (r *Resolver) LookupCNAME(ctx context.Context, name string) ([]string, error) {
	return r.stringRecords(ctx, r.CNAME, "CNAME", name)
}

func (r *Resolver) LookupNS(ctx context.Context, name string) ([]string, error) {
	return r.stringRecords(ctx, r.NS, "NS", name)
}

func (r *Resolver) LookupMX(ctx context.Context, name string) ([]lookup.MXRecord, error) {
	name, err := r.record(ctx, "MX", name)
	if err != nil {
		return nil, err
	}
	if v := r.MX[name]; len(v) > 0 {
		return append([]lookup.MXRecord(nil), v...), nil
	}
	return nil, r.missing(name)
}

func (r *Resolver) LookupSOA(ctx context.Context, name string) (*lookup.SOARecord, error) {
	name, err := r.record(ctx, "SOA", name)
	if err != nil {
		return nil, err
	}
	if v := r.SOA[name]; v != nil {
		soa := *v
		return &soa, nil
	}
	return nil, r.missing(name)
}

// Prober is a canned lookup.MailboxProber keyed by MX host. Hosts without an
// entry fail as if the connection was refused.
type Prober struct {
	Status map[string]*lookup.MailboxStatus
	Err    map[string]error

	mu    sync.Mutex
	Hosts []string
}

func (p *Prober) CheckMailbox(ctx context.Context, mxHost, email string) (*lookup.MailboxStatus, error) {
	p.mu.Lock()
	p.Hosts = append(p.Hosts, mxHost)
	p.mu.Unlock()

	if err, ok := p.Err[mxHost]; ok {
		return nil, err
	}
	if st, ok := p.Status[mxHost]; ok {
		return st, nil
	}
	return nil, errConnRefused
}

type connRefused struct{}

func (connRefused) Error() string { return "connection refused" }

var errConnRefused error = connRefused{}

package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"mailaudit/internal/apperr"
)

// Typed resolver failures. They are *apperr.Error values so the request layer
// can classify them without importing this package.
var (
	ErrNotFound    = apperr.New(apperr.RecordNotFound, "Domain does not exist")
	ErrNoAnswer    = apperr.New(apperr.RecordAbsent, "No records found")
	ErrTimeout     = apperr.New(apperr.UpstreamTimeout, "DNS query timeout")
	ErrUnavailable = apperr.New(apperr.UpstreamUnavailable, "DNS server unavailable")
)

// MXRecord is one mail exchanger. Lower Priority is preferred.
type MXRecord struct {
	Priority uint16 `json:"priority"`
	Host     string `json:"host"`
}

type SOARecord struct {
	MName   string `json:"mname"`
	RName   string `json:"rname"`
	Serial  uint32 `json:"serial"`
	Refresh uint32 `json:"refresh"`
	Retry   uint32 `json:"retry"`
	Expire  uint32 `json:"expire"`
	Minimum uint32 `json:"minimum"`
}

// Resolver answers typed record queries. Hostnames come back without the
// trailing root dot; multi-string TXT records come back concatenated.
type Resolver interface {
	LookupA(ctx context.Context, name string) ([]string, error)
	LookupAAAA(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]MXRecord, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, name string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]string, error)
	LookupSOA(ctx context.Context, name string) (*SOARecord, error)
}

var fallbackServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// DNSResolver queries recursive servers directly over the wire.
type DNSResolver struct {
	servers []string
	timeout time.Duration
	client  *dns.Client
}

// NewDNSResolver builds a resolver. With no servers it reads /etc/resolv.conf
// and falls back to public resolvers when that fails.
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if len(servers) == 0 {
		servers = systemServers()
	}
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	return &DNSResolver{
		servers: normalized,
		timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func systemServers() []string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return fallbackServers
	}
	out := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		out = append(out, net.JoinHostPort(s, conf.Port))
	}
	return out
}

func (r *DNSResolver) Servers() []string { return r.servers }

// query sends one question, trying each server in turn. Only transport errors
// move on to the next server; an authoritative NXDOMAIN or an empty answer is final.
func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.SetEdns0(4096, false)

	var lastErr error = ErrUnavailable
	for _, server := range r.servers {
		qctx, cancel := context.WithTimeout(ctx, r.timeout)
		resp, _, err := r.client.ExchangeContext(qctx, m, server)
		if err == nil && resp != nil && resp.Truncated {
			tcp := &dns.Client{Net: "tcp", Timeout: r.timeout}
			resp, _, err = tcp.ExchangeContext(qctx, m, server)
		}
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = classify(err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, ErrNotFound
		default:
			lastErr = apperr.New(apperr.UpstreamUnavailable, "server returned "+dns.RcodeToString[resp.Rcode])
			continue
		}

		var answers []dns.RR
		for _, rr := range resp.Answer {
			if rr.Header().Rrtype == qtype {
				answers = append(answers, rr)
			}
		}
		if len(answers) == 0 {
			return nil, ErrNoAnswer
		}
		return answers, nil
	}
	return nil, lastErr
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.UpstreamTimeout, ErrTimeout.Msg, err)
	}
	return apperr.Wrap(apperr.UpstreamUnavailable, "transport failure", err)
}

func (r *DNSResolver) LookupA(ctx context.Context, name string) ([]string, error) {
	rrs, err := r.query(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, rr.(*dns.A).A.String())
	}
	return out, nil
}

func (r *DNSResolver) LookupAAAA(ctx context.Context, name string) ([]string, error) {
	rrs, err := r.query(ctx, name, dns.TypeAAAA)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, rr.(*dns.AAAA).AAAA.String())
	}
	return out, nil
}

func (r *DNSResolver) LookupMX(ctx context.Context, name string) ([]MXRecord, error) {
	rrs, err := r.query(ctx, name, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	out := make([]MXRecord, 0, len(rrs))
	for _, rr := range rrs {
		mx := rr.(*dns.MX)
		out = append(out, MXRecord{Priority: mx.Preference, Host: trimDot(mx.Mx)})
	}
	return out, nil
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	rrs, err := r.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		var b strings.Builder
		for _, part := range rr.(*dns.TXT).Txt {
			b.WriteString(unescapeTXT(part))
		}
		out = append(out, b.String())
	}
	return out, nil
}

// unescapeTXT reverses miekg/dns presentation escaping (\", \\, \DDD) so
// callers see the raw character-string bytes.
func unescapeTXT(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b = append(b, s[i])
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			n := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0')
			if n <= 255 {
				b = append(b, byte(n))
				i += 3
				continue
			}
		}
		b = append(b, s[i+1])
		i++
	}
	return string(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (r *DNSResolver) LookupCNAME(ctx context.Context, name string) ([]string, error) {
	rrs, err := r.query(ctx, name, dns.TypeCNAME)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, trimDot(rr.(*dns.CNAME).Target))
	}
	return out, nil
}

func (r *DNSResolver) LookupNS(ctx context.Context, name string) ([]string, error) {
	rrs, err := r.query(ctx, name, dns.TypeNS)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, trimDot(rr.(*dns.NS).Ns))
	}
	return out, nil
}

func (r *DNSResolver) LookupSOA(ctx context.Context, name string) (*SOARecord, error) {
	rrs, err := r.query(ctx, name, dns.TypeSOA)
	if err != nil {
		return nil, err
	}
	soa := rrs[0].(*dns.SOA)
	return &SOARecord{
		MName:   trimDot(soa.Ns),
		RName:   trimDot(soa.Mbox),
		Serial:  soa.Serial,
		Refresh: soa.Refresh,
		Retry:   soa.Retry,
		Expire:  soa.Expire,
		Minimum: soa.Minttl,
	}, nil
}

// SortMX orders records by ascending priority, then host, in place.
func SortMX(records []MXRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Host < records[j].Host
	})
}

// Describe renders a resolver error the way checkers report it to users.
// recordType is used for the NoAnswer case ("No MX records found").
func Describe(err error, recordType string) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Domain does not exist"
	case errors.Is(err, ErrNoAnswer):
		return fmt.Sprintf("No %s records found", recordType)
	case apperr.KindOf(err) == apperr.UpstreamTimeout:
		return "DNS query timeout"
	default:
		return "DNS error: " + err.Error()
	}
}

func trimDot(s string) string {
	return strings.TrimSuffix(s, ".")
}

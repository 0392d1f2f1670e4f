package lookup

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailaudit/internal/apperr"
)

var zone = map[string][]string{
	"example.com./MX": {
		"example.com. 300 IN MX 20 backup.example.com.",
		"example.com. 300 IN MX 10 mail.example.com.",
	},
	"example.com./TXT": {
		`example.com. 300 IN TXT "v=spf1 include:_spf.example.net " "-all"`,
	},
	"quoted.example.com./TXT": {
		`quoted.example.com. 300 IN TXT "say \"hi\" caf\195\169 a\\b"`,
	},
	"example.com./A":  {"example.com. 300 IN A 93.184.216.34"},
	"example.com./NS": {"example.com. 300 IN NS ns1.example.com."},
	"example.com./SOA": {
		"example.com. 300 IN SOA ns1.example.com. hostmaster.example.com. 2024010101 7200 3600 1209600 300",
	},
	// A CNAME in the answer section of an A query must not leak into A results.
	"www.example.com./A": {
		"www.example.com. 300 IN CNAME example.com.",
		"example.com. 300 IN A 93.184.216.34",
	},
}

func startServer(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		q := req.Question[0]
		m := new(dns.Msg)
		m.SetReply(req)

		switch q.Name {
		case "slow.example.com.":
			return
		case "missing.example.com.":
			m.SetRcode(req, dns.RcodeNameError)
		case "broken.example.com.":
			m.SetRcode(req, dns.RcodeServerFailure)
		default:
			for _, s := range zone[q.Name+"/"+dns.TypeToString[q.Qtype]] {
				rr, err := dns.NewRR(s)
				if err == nil {
					m.Answer = append(m.Answer, rr)
				}
			}
		}
		w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	ready := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(ready) }
	go srv.ActivateAndServe()
	<-ready
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSResolverRecords(t *testing.T) {
	r := NewDNSResolver([]string{startServer(t)}, time.Second)
	ctx := context.Background()

	mx, err := r.LookupMX(ctx, "example.com")
	require.NoError(t, err)
	SortMX(mx)
	assert.Equal(t, []MXRecord{{10, "mail.example.com"}, {20, "backup.example.com"}}, mx)

	txt, err := r.LookupTXT(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"v=spf1 include:_spf.example.net -all"}, txt, "character-strings are joined")

	txt, err = r.LookupTXT(ctx, "quoted.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{`say "hi" café a\b`}, txt, "presentation escapes are decoded")

	a, err := r.LookupA(ctx, "www.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"93.184.216.34"}, a)

	ns, err := r.LookupNS(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns1.example.com"}, ns, "trailing dot is trimmed")

	soa, err := r.LookupSOA(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "hostmaster.example.com", soa.RName)
	assert.EqualValues(t, 2024010101, soa.Serial)
}

func TestUnescapeTXT(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{`\"quoted\"`, `"quoted"`},
		{`a\\b`, `a\b`},
		{`caf\195\169`, "café"},
		{`\059 semi`, "; semi"},
		{`trailing\`, `trailing\`},
		{`\999`, "999"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unescapeTXT(tt.in), tt.in)
	}
}

func TestDNSResolverErrors(t *testing.T) {
	r := NewDNSResolver([]string{startServer(t)}, 200*time.Millisecond)
	ctx := context.Background()

	_, err := r.LookupA(ctx, "missing.example.com")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Domain does not exist", Describe(err, "A"))

	_, err = r.LookupAAAA(ctx, "example.com")
	assert.True(t, errors.Is(err, ErrNoAnswer))
	assert.Equal(t, "No AAAA records found", Describe(err, "AAAA"))

	_, err = r.LookupA(ctx, "slow.example.com")
	assert.Equal(t, apperr.UpstreamTimeout, apperr.KindOf(err))
	assert.Equal(t, "DNS query timeout", Describe(err, "A"))

	_, err = r.LookupA(ctx, "broken.example.com")
	assert.Equal(t, apperr.UpstreamUnavailable, apperr.KindOf(err))
}

func TestDNSResolverCancelledContext(t *testing.T) {
	r := NewDNSResolver([]string{startServer(t)}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.LookupA(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDNSResolverAddsPort(t *testing.T) {
	r := NewDNSResolver([]string{"9.9.9.9", "[2620:fe::fe]:53"}, 0)
	assert.Equal(t, []string{"9.9.9.9:53", "[2620:fe::fe]:53"}, r.Servers())
}

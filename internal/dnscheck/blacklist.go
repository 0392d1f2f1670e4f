package dnscheck

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mailaudit/internal/apperr"
	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
	"mailaudit/internal/validator"
)

const (
	TypeIP     = "ip"
	TypeDomain = "domain"
)

// Blacklist is one DNSBL zone.
type Blacklist struct {
	Name string
	Host string
	Type string
}

var DefaultBlacklists = []Blacklist{
	{Name: "Spamhaus ZEN", Host: "zen.spamhaus.org", Type: TypeIP},
	{Name: "SpamCop", Host: "bl.spamcop.net", Type: TypeIP},
	{Name: "SORBS", Host: "dnsbl.sorbs.net", Type: TypeIP},
	{Name: "Barracuda", Host: "b.barracudacentral.org", Type: TypeIP},
	{Name: "UCEPROTECT Level 1", Host: "dnsbl-1.uceprotect.net", Type: TypeIP},
	{Name: "Spamhaus DBL", Host: "dbl.spamhaus.org", Type: TypeDomain},
	{Name: "SURBL", Host: "multi.surbl.org", Type: TypeDomain},
}

// QueryName builds the DNSBL lookup name. IPv4 targets are octet-reversed;
// domains are prepended as-is.
func QueryName(target, zone string) string {
	if ip := net.ParseIP(target); ip != nil && ip.To4() != nil {
		o := strings.Split(ip.To4().String(), ".")
		return fmt.Sprintf("%s.%s.%s.%s.%s", o[3], o[2], o[1], o[0], zone)
	}
	return target + "." + zone
}

// BlacklistChecker queries every configured list for a target.
type BlacklistChecker struct {
	resolver lookup.Resolver
	lists    []Blacklist
	fanout   int
}

func NewBlacklistChecker(resolver lookup.Resolver, lists []Blacklist, fanout int) *BlacklistChecker {
	if len(lists) == 0 {
		lists = DefaultBlacklists
	}
	if fanout <= 0 {
		fanout = 8
	}
	return &BlacklistChecker{resolver: resolver, lists: lists, fanout: fanout}
}

// Check queries the lists matching the target kind: IPv4 addresses go to IP
// lists, anything else is normalized as a domain and goes to domain lists.
// A list whose lookup fails for any reason other than "not present" is
// reported as unknown, never as clean.
func (c *BlacklistChecker) Check(ctx context.Context, target string) (*models.BlacklistReport, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, apperr.Invalid("domain or IP address is required")
	}

	kind := TypeDomain
	if ip := net.ParseIP(target); ip != nil {
		if ip.To4() == nil {
			return nil, apperr.Invalid("IPv6 addresses are not supported by the configured blacklists")
		}
		kind = TypeIP
		target = ip.To4().String()
	} else {
		d, err := validator.NormalizeDomain(target)
		if err != nil {
			return nil, err
		}
		target = d
	}

	var lists []Blacklist
	for _, bl := range c.lists {
		if bl.Type == kind {
			lists = append(lists, bl)
		}
	}

	results := make([]models.BlacklistResult, len(lists))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanout)

	for i, bl := range lists {
		i, bl := i, bl
		g.Go(func() error {
			results[i] = c.query(gctx, target, bl)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &models.BlacklistReport{
		Target:     target,
		TargetType: kind,
		Results:    results,
	}
	for _, r := range results {
		switch r.Status {
		case models.Listed:
			report.ListedCount++
		case models.Clean:
			report.CleanCount++
		default:
			report.Stats.UnknownCount++
		}
	}
	report.Stats.TotalChecked = len(results)
	report.Stats.ListedCount = report.ListedCount
	report.Stats.CleanCount = report.CleanCount
	report.Recommendation = recommend(report)
	return report, nil
}

func (c *BlacklistChecker) query(ctx context.Context, target string, bl Blacklist) models.BlacklistResult {
	res := models.BlacklistResult{Name: bl.Name, Host: bl.Host, Type: bl.Type}

	answers, err := c.resolver.LookupA(ctx, QueryName(target, bl.Host))
	switch {
	case err == nil:
		if code, refused := refusal(answers); refused {
			res.Status = models.Unknown
			res.Error = fmt.Sprintf("Query refused by blacklist (response %s)", code)
			return res
		}
		res.Status = models.Listed
		res.IsListed = true
		res.Checked = true
	case isAbsent(err):
		res.Status = models.Clean
		res.Checked = true
	default:
		res.Status = models.Unknown
		res.Error = lookup.Describe(err, "A")
		log.Debug().Err(err).Str("blacklist", bl.Host).Str("target", target).Msg("blacklist lookup failed")
	}
	return res
}

// refusal spots the 127.255.255.x codes DNSBLs return for blocked or
// rate-limited resolvers, which are not listings.
func refusal(answers []string) (string, bool) {
	for _, a := range answers {
		if strings.HasPrefix(a, "127.255.255.") {
			return a, true
		}
	}
	return "", false
}

func recommend(r *models.BlacklistReport) string {
	switch {
	case r.ListedCount > 0:
		return fmt.Sprintf("Listed on %d blacklist(s). Check the sending host for compromise or open relay, fix the cause, then request delisting from each provider.", r.ListedCount)
	case r.Stats.UnknownCount > 0:
		return fmt.Sprintf("Not listed on any blacklist that answered, but %d could not be checked. Try again later.", r.Stats.UnknownCount)
	default:
		return "Not listed on any checked blacklist."
	}
}

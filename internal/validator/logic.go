package validator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"mailaudit/internal/lookup"
	"mailaudit/internal/models"
)

const defaultSMTPHosts = 3

const nullMXMessage = "Domain does not accept email (null MX)"

// Validator runs the email pipeline: syntax, MX, disposable, SMTP. Each stage
// runs only when the stages before it passed.
type Validator struct {
	resolver   lookup.Resolver
	prober     lookup.MailboxProber
	disposable DisposableSet
	smtpHosts  int
}

// New builds a Validator. A nil prober disables the SMTP stage; an empty
// disposable set falls back to the defaults.
func New(resolver lookup.Resolver, prober lookup.MailboxProber, disposable DisposableSet) *Validator {
	if len(disposable) == 0 {
		disposable = NewDisposableSet(DefaultDisposableDomains)
	}
	return &Validator{
		resolver:   resolver,
		prober:     prober,
		disposable: disposable,
		smtpHosts:  defaultSMTPHosts,
	}
}

// Validate checks one address. The only error it returns is ctx's, in which
// case the partial result is meaningless and should be dropped.
func (v *Validator) Validate(ctx context.Context, email string, checkSMTP bool) (models.ValidationResult, error) {
	result := models.ValidationResult{
		Email:     email,
		MXRecords: []lookup.MXRecord{},
	}

	syntax := ValidateSyntax(email)
	result.IsValidSyntax = syntax.Valid
	result.Details.Syntax = syntax.Message
	if !syntax.Valid {
		result.Message = "Invalid syntax: " + syntax.Message
		return result, nil
	}

	mx, dnsMsg, err := v.validateDNS(ctx, syntax.Domain)
	if err != nil {
		return result, err
	}
	result.IsValidDNS = len(mx) > 0
	result.MXRecords = mx
	result.Details.DNS = dnsMsg
	if !result.IsValidDNS {
		result.Message = "DNS validation failed: " + dnsMsg
		return result, nil
	}

	result.IsDisposable, result.Details.Disposable = v.disposable.CheckDisposable(syntax.Normalized)

	if checkSMTP && v.prober != nil {
		ok, msg, err := v.validateSMTP(ctx, syntax.Local+"@"+syntax.Domain, mx)
		if err != nil {
			return result, err
		}
		result.IsValidSMTP = ok
		result.Details.SMTP = msg
	} else {
		result.Details.SMTP = "SMTP check skipped"
	}

	switch {
	case result.IsDisposable:
		result.Message = "Valid email but from disposable domain"
	case result.IsValidSMTP:
		result.Message = "Email is valid and verified"
	default:
		result.Message = "Email is syntactically valid with valid DNS"
	}
	return result, nil
}

func (v *Validator) validateDNS(ctx context.Context, domain string) ([]lookup.MXRecord, string, error) {
	mx, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return []lookup.MXRecord{}, lookup.Describe(err, "MX"), nil
	}

	// RFC 7505 null MX: exchange "." comes back as an empty host.
	hosts := make([]lookup.MXRecord, 0, len(mx))
	for _, rec := range mx {
		if rec.Host != "" {
			hosts = append(hosts, rec)
		}
	}
	if len(hosts) == 0 {
		if len(mx) > 0 {
			return hosts, nullMXMessage, nil
		}
		return hosts, "No MX records found", nil
	}
	lookup.SortMX(hosts)
	return hosts, fmt.Sprintf("Found %d MX record(s)", len(hosts)), nil
}

// validateSMTP asks the preferred exchangers in turn. Hosts that cannot be
// reached are skipped; the first host that answers RCPT decides.
func (v *Validator) validateSMTP(ctx context.Context, email string, mx []lookup.MXRecord) (bool, string, error) {
	hosts := mx
	if len(hosts) > v.smtpHosts {
		hosts = hosts[:v.smtpHosts]
	}

	for _, rec := range hosts {
		status, err := v.prober.CheckMailbox(ctx, rec.Host, email)
		if err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			log.Debug().Err(err).Str("mx", rec.Host).Msg("smtp probe failed, trying next exchanger")
			continue
		}

		switch {
		case status.Accepted:
			return true, "Email address exists", nil
		case lookup.IsNoSuchUser(status):
			return false, "Email address does not exist", nil
		default:
			return false, fmt.Sprintf("Uncertain (code %d): %s", status.Code, status.Message), nil
		}
	}
	return false, "Could not verify via SMTP (server not responding)", nil
}

package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/badoux/checkmail"
	"golang.org/x/net/idna"

	"mailaudit/internal/apperr"
)

const (
	maxEmailLength = 254
	maxLocalLength = 64
	maxDomainLen   = 253
)

var (
	// Underscores are allowed so service names like _spf and _dmarc pass;
	// mailbox domains are held to LDH by checkmail afterwards.
	labelRegex  = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9])?$`)
	idnaProfile = idna.New(idna.MapForLookup(), idna.Transitional(false), idna.StrictDomainName(false))
)

// Syntax is the outcome of the grammar check. Domain is the ASCII (punycode)
// form used for every later network lookup.
type Syntax struct {
	Valid      bool
	Normalized string
	Local      string
	Domain     string
	Message    string
}

// ValidateSyntax checks the address grammar only. Deliverability is a
// separate stage.
func ValidateSyntax(email string) Syntax {
	email = strings.TrimSpace(email)
	fail := func(format string, args ...any) Syntax {
		return Syntax{Message: fmt.Sprintf(format, args...)}
	}

	if email == "" {
		return fail("The email address is empty.")
	}
	for _, r := range email {
		if unicode.IsControl(r) {
			return fail("The email address contains control characters.")
		}
	}
	if strings.Count(email, "@") != 1 {
		return fail("The email address is not valid. It must have exactly one @-sign.")
	}

	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]

	if local == "" {
		return fail("There must be something before the @-sign.")
	}
	if len(local) > maxLocalLength {
		return fail("The email address is too long before the @-sign (%d characters too many).", len(local)-maxLocalLength)
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return fail("The email address contains a period in an invalid position before the @-sign.")
	}
	if domain == "" {
		return fail("There must be something after the @-sign.")
	}

	ascii, err := domainToASCII(domain)
	if err != nil {
		return fail("The domain name %s is not valid.", domain)
	}
	if !strings.Contains(ascii, ".") {
		return fail("The domain name %s is not valid. It should have a period.", domain)
	}

	if err := checkmail.ValidateFormat(local + "@" + ascii); err != nil {
		return fail("The email address contains invalid characters.")
	}

	normalized := local + "@" + strings.ToLower(domain)
	if len(local)+1+len(ascii) > maxEmailLength {
		return fail("The email address is too long (%d characters too many).", len(local)+1+len(ascii)-maxEmailLength)
	}

	return Syntax{
		Valid:      true,
		Normalized: normalized,
		Local:      local,
		Domain:     ascii,
		Message:    "Valid email syntax: " + normalized,
	}
}

// NormalizeDomain cleans up a user-supplied domain for the DNS tools: it
// tolerates a pasted URL, lowercases, converts IDNs to punycode and rejects
// anything that is not a plausible hostname.
func NormalizeDomain(input string) (string, error) {
	d := strings.TrimSpace(input)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if d == "" {
		return "", apperr.Invalid("domain is required")
	}

	ascii, err := domainToASCII(d)
	if err != nil || !strings.Contains(ascii, ".") {
		return "", apperr.Invalid("Invalid domain: %s", input)
	}
	return ascii, nil
}

func domainToASCII(domain string) (string, error) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" || len(domain) > maxDomainLen {
		return "", fmt.Errorf("invalid domain length")
	}

	ascii, err := idnaProfile.ToASCII(domain)
	if err != nil {
		return "", err
	}
	for _, label := range strings.Split(ascii, ".") {
		if !labelRegex.MatchString(label) {
			return "", fmt.Errorf("invalid label %q", label)
		}
	}
	return ascii, nil
}

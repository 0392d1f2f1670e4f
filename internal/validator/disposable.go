package validator

import (
	"fmt"
	"strings"
)

// DefaultDisposableDomains are known throwaway-mail providers.
var DefaultDisposableDomains = []string{
	"tempmail.com", "guerrillamail.com", "10minutemail.com", "throwaway.email",
	"mailinator.com", "getnada.com", "temp-mail.org", "fakeinbox.com",
	"trashmail.com", "yopmail.com", "maildrop.cc", "sharklasers.com",
	"guerrillamail.info", "grr.la", "guerrillamail.biz", "guerrillamail.de",
	"spam4.me", "anonymousemail.me", "throwawaymail.com", "tempmail.net",
	"dispostable.com",
}

// DisposableSet matches domains exactly, case-insensitively. Subdomains of a
// listed domain are not matched.
type DisposableSet map[string]struct{}

func NewDisposableSet(domains []string) DisposableSet {
	set := make(DisposableSet, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

func (s DisposableSet) Contains(domain string) bool {
	_, ok := s[strings.ToLower(strings.TrimSuffix(domain, "."))]
	return ok
}

// CheckDisposable reports whether the address belongs to a disposable domain.
func (s DisposableSet) CheckDisposable(email string) (bool, string) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false, "Invalid email format"
	}
	domain := strings.ToLower(email[at+1:])
	if s.Contains(domain) {
		return true, fmt.Sprintf("Disposable email domain detected: %s", domain)
	}
	return false, "Not a known disposable email"
}

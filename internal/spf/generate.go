package spf

import (
	"fmt"
	"net"
	"strings"

	"mailaudit/internal/apperr"
	"mailaudit/internal/models"
	"mailaudit/internal/validator"
)

// GenerateRequest describes the sending sources to authorize.
type GenerateRequest struct {
	Domain         string   `json:"domain"`
	IncludeDomains []string `json:"include_domains"`
	IP4            []string `json:"ip4"`
	IP6            []string `json:"ip6"`
	ARecord        bool     `json:"a_record"`
	MXRecord       bool     `json:"mx_record"`
	Policy         string   `json:"policy"`
}

// maxTXTString is the length of one DNS character-string.
const maxTXTString = 255

// Generate builds an SPF record from req without touching DNS. Invalid
// entries are skipped with a warning; only a bad domain or policy is an error.
func Generate(req GenerateRequest) (models.GeneratedSPF, error) {
	domain, err := validator.NormalizeDomain(req.Domain)
	if err != nil {
		return models.GeneratedSPF{}, err
	}
	qualifier, err := parsePolicy(req.Policy)
	if err != nil {
		return models.GeneratedSPF{}, err
	}

	out := models.GeneratedSPF{
		Domain:   domain,
		Warnings: []string{},
		Explanation: models.SPFExplanation{
			Mechanisms: []models.SPFMechanism{},
		},
	}

	terms := []string{"v=spf1"}
	if req.ARecord {
		terms = append(terms, "a")
	}
	if req.MXRecord {
		terms = append(terms, "mx")
	}

	for _, raw := range req.IP4 {
		ip := strings.TrimSpace(raw)
		if ip == "" {
			continue
		}
		if !isIPv4(ip) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Skipped invalid IPv4 address '%s'", ip))
			continue
		}
		terms = append(terms, "ip4:"+ip)
	}
	for _, raw := range req.IP6 {
		ip := strings.TrimSpace(raw)
		if ip == "" {
			continue
		}
		if !isIPv6(ip) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Skipped invalid IPv6 address '%s'", ip))
			continue
		}
		terms = append(terms, "ip6:"+ip)
	}
	for _, raw := range req.IncludeDomains {
		inc := strings.TrimSpace(raw)
		if inc == "" {
			continue
		}
		norm, err := validator.NormalizeDomain(inc)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Skipped invalid include domain '%s'", inc))
			continue
		}
		terms = append(terms, "include:"+norm)
	}

	if len(terms) == 1 {
		out.Warnings = append(out.Warnings, "No mechanisms specified - only the default policy will apply")
	}

	terms = append(terms, qualifier+"all")
	record := strings.Join(terms, " ")

	for _, t := range Tokenize(record) {
		if t.CostsLookup() {
			out.DNSLookupCount++
		}
		if t.Name == "all" {
			continue
		}
		out.Explanation.Mechanisms = append(out.Explanation.Mechanisms, models.SPFMechanism{
			Qualifier:   t.Qualifier,
			Mechanism:   t.Mechanism(),
			Description: t.Describe(),
		})
	}
	out.Explanation.Policy = allPolicies[qualifier]

	if out.DNSLookupCount > LookupLimit {
		out.Warnings = append(out.Warnings, fmt.Sprintf("Too many DNS lookups (%d). SPF limit is %d.", out.DNSLookupCount, LookupLimit))
	}
	if qualifier == "+" {
		out.Warnings = append(out.Warnings, "'+all' lets any server send mail for this domain - use '~all' or '-all'")
	}
	if len(record) > maxTXTString {
		out.Warnings = append(out.Warnings, fmt.Sprintf("Record is %d characters; split it into strings of at most %d characters", len(record), maxTXTString))
	}

	out.SPFRecord = record
	out.DNSRecord = fmt.Sprintf("%s IN TXT \"%s\"", domain, record)
	out.InstallationSteps = []string{
		"Log in to the DNS management console for " + domain,
		"Remove any existing TXT record that starts with v=spf1",
		"Create a TXT record for host @ (" + domain + ") with the value: " + record,
		"Wait for DNS propagation (usually under an hour, up to 48 hours)",
		"Run the SPF check on " + domain + " to confirm the new record",
	}
	return out, nil
}

func parsePolicy(p string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "~all", "~", "softfail":
		return "~", nil
	case "-all", "-", "fail", "reject":
		return "-", nil
	case "?all", "?", "neutral":
		return "?", nil
	case "+all", "+", "all", "pass":
		return "+", nil
	default:
		return "", apperr.Invalid("Invalid policy %q: use -all, ~all, ?all or +all", p)
	}
}

func isIPv4(s string) bool {
	ip := parseIPOrCIDR(s)
	return ip != nil && ip.To4() != nil && !strings.Contains(s, ":")
}

func isIPv6(s string) bool {
	ip := parseIPOrCIDR(s)
	return ip != nil && strings.Contains(s, ":")
}

func parseIPOrCIDR(s string) net.IP {
	if strings.Contains(s, "/") {
		ip, _, err := net.ParseCIDR(s)
		if err != nil {
			return nil
		}
		return ip
	}
	return net.ParseIP(s)
}

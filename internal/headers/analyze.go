package headers

import (
	"regexp"
	"strings"

	"mailaudit/internal/models"
)

const notAvailable = "N/A"

var (
	spfResultRe   = regexp.MustCompile(`(?i)(?:^|[\s;])spf=(\w+)`)
	dkimResultRe  = regexp.MustCompile(`(?i)(?:^|[\s;])dkim=(\w+)`)
	dmarcResultRe = regexp.MustCompile(`(?i)(?:^|[\s;])dmarc=(\w+)`)

	hopFromRe = regexp.MustCompile(`(?i)(?:^|\s)from\s+(\S+)`)
	hopByRe   = regexp.MustCompile(`(?i)(?:^|\s)by\s+(\S+)`)

	angleAddrRe = regexp.MustCompile(`<(.+?)>`)
)

// Analyze parses raw header text and flags authentication and spoofing
// problems. Routing hops keep header order, which by convention is
// most recent first.
func Analyze(raw string) models.HeaderAnalysis {
	result := models.HeaderAnalysis{
		Summary: models.HeaderSummary{
			From: notAvailable, To: notAvailable, Subject: notAvailable,
			Date: notAvailable, MessageID: notAvailable,
		},
		Security: models.HeaderSecurity{
			ReturnPath: notAvailable, ReplyTo: notAvailable, XMailer: notAvailable,
			XOriginatingIP: notAvailable, ListUnsubscribe: notAvailable,
		},
		Routing:  []models.Hop{},
		Warnings: []string{},
		Errors:   []string{},
	}

	if strings.TrimSpace(raw) == "" {
		result.Errors = append(result.Errors, "No headers provided")
		return result
	}

	fields := Parse(raw)
	if len(fields) == 0 {
		result.Errors = append(result.Errors, "No header fields found - expected lines like 'Name: value'")
		return result
	}

	result.Summary = models.HeaderSummary{
		From:      getOr(fields, "From"),
		To:        getOr(fields, "To"),
		Subject:   getOr(fields, "Subject"),
		Date:      getOr(fields, "Date"),
		MessageID: getOr(fields, "Message-ID"),
	}
	result.Security = models.HeaderSecurity{
		ReturnPath:      getOr(fields, "Return-Path"),
		ReplyTo:         getOr(fields, "Reply-To"),
		XMailer:         getOr(fields, "X-Mailer"),
		XOriginatingIP:  getOr(fields, "X-Originating-IP"),
		ListUnsubscribe: getOr(fields, "List-Unsubscribe"),
	}
	result.Authentication = authentication(fields)
	result.Routing = routing(fields)
	result.Warnings = warnings(result)
	return result
}

func getOr(fields Fields, name string) string {
	if !fields.Has(name) {
		return notAvailable
	}
	return fields.Get(name)
}

func authentication(fields Fields) models.AuthResults {
	var auth models.AuthResults

	if ar := fields.Get("Authentication-Results"); ar != "" {
		auth.SPF = match(spfResultRe, ar)
		auth.DKIM = match(dkimResultRe, ar)
		auth.DMARC = match(dmarcResultRe, ar)
	}

	if auth.SPF == nil {
		if rs := strings.Fields(fields.Get("Received-SPF")); len(rs) > 0 {
			v := strings.ToLower(rs[0])
			auth.SPF = &v
		}
	}
	if auth.DKIM == nil && fields.Has("DKIM-Signature") {
		v := "present"
		auth.DKIM = &v
	}
	return auth
}

func match(re *regexp.Regexp, s string) *string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v := strings.ToLower(m[1])
	return &v
}

func routing(fields Fields) []models.Hop {
	hops := []models.Hop{}
	for i, received := range fields.All("Received") {
		hop := models.Hop{Hop: i + 1}
		if m := hopFromRe.FindStringSubmatch(received); m != nil {
			hop.From = m[1]
		}
		if m := hopByRe.FindStringSubmatch(received); m != nil {
			hop.By = m[1]
		}
		if i := strings.LastIndex(received, ";"); i >= 0 {
			hop.Date = strings.TrimSpace(received[i+1:])
		}
		hop.Server = hop.By
		hops = append(hops, hop)
	}
	return hops
}

func warnings(r models.HeaderAnalysis) []string {
	w := []string{}

	switch deref(r.Authentication.SPF) {
	case "fail":
		w = append(w, "SPF check failed - sender may be spoofed")
	case "softfail":
		w = append(w, "SPF soft fail - sender verification uncertain")
	case "":
		w = append(w, "No SPF check performed")
	}

	switch deref(r.Authentication.DKIM) {
	case "fail":
		w = append(w, "DKIM signature failed - email may be tampered")
	case "":
		w = append(w, "No DKIM signature found")
	}

	switch deref(r.Authentication.DMARC) {
	case "fail":
		w = append(w, "DMARC check failed - email failed authentication")
	case "":
		w = append(w, "No DMARC check performed")
	}

	if r.Security.ReturnPath != notAvailable && r.Summary.From != notAvailable {
		rp := angleAddrRe.FindStringSubmatch(r.Security.ReturnPath)
		from := angleAddrRe.FindStringSubmatch(r.Summary.From)
		if rp != nil && from != nil && !strings.EqualFold(rp[1], from[1]) {
			w = append(w, "Return-Path differs from From address - possible spoofing")
		}
	}
	return w
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

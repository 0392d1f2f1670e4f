package lookup

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"mailaudit/internal/proxy"
)

const (
	DefaultHeloHost = "mailaudit.local"
	DefaultMailFrom = "verify@example.com"
)

// MailboxStatus is the server's answer to RCPT TO.
type MailboxStatus struct {
	Accepted bool
	Code     int
	Message  string
}

// MailboxProber asks a mail exchanger whether it would accept a recipient.
// An error means the session never reached RCPT; a rejection is not an error.
type MailboxProber interface {
	CheckMailbox(ctx context.Context, mxHost, email string) (*MailboxStatus, error)
}

// SMTPProber runs HELO / MAIL FROM / RCPT TO against port 25 and quits
// without sending DATA.
type SMTPProber struct {
	Proxies  *proxy.Manager
	Timeout  time.Duration
	Port     int
	HeloHost string
	MailFrom string

	// sem bounds concurrent port-25 sessions from this host so large bulk
	// jobs do not get the source IP throttled.
	sem chan struct{}
}

func NewSMTPProber(proxies *proxy.Manager, timeout time.Duration, maxSessions int) *SMTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxSessions <= 0 {
		maxSessions = 15
	}
	return &SMTPProber{
		Proxies:  proxies,
		Timeout:  timeout,
		Port:     25,
		HeloHost: DefaultHeloHost,
		MailFrom: DefaultMailFrom,
		sem:      make(chan struct{}, maxSessions),
	}
}

func (p *SMTPProber) CheckMailbox(ctx context.Context, mxHost, email string) (*MailboxStatus, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	addr := net.JoinHostPort(mxHost, strconv.Itoa(p.Port))

	var conn net.Conn
	var err error
	if p.Proxies.SMTPEnabled() {
		conn, err = p.Proxies.DialContext(ctx, "tcp", addr, p.Timeout)
	} else {
		d := net.Dialer{Timeout: p.Timeout}
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	deadline := time.Now().Add(p.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}

	tp := textproto.NewConn(conn)
	defer tp.Close()

	if _, _, err := tp.ReadResponse(220); err != nil {
		return nil, fmt.Errorf("banner timeout/rejected: %w", err)
	}

	if _, err := tp.Cmd("HELO %s", p.HeloHost); err != nil {
		return nil, err
	}
	if _, _, err := tp.ReadResponse(250); err != nil {
		return nil, fmt.Errorf("HELO rejected: %w", err)
	}

	if _, err := tp.Cmd("MAIL FROM:<%s>", p.MailFrom); err != nil {
		return nil, err
	}
	if _, _, err := tp.ReadResponse(250); err != nil {
		return nil, fmt.Errorf("MAIL FROM rejected: %w", err)
	}

	if _, err := tp.Cmd("RCPT TO:<%s>", email); err != nil {
		return nil, err
	}

	// Read ANY response (0); the verdict is ours to make, not textproto's.
	code, msg, err := tp.ReadResponse(0)
	if err != nil {
		return nil, fmt.Errorf("network read error: %w", err)
	}

	tp.Cmd("QUIT")

	return &MailboxStatus{
		Accepted: code == 250 || code == 251,
		Code:     code,
		Message:  msg,
	}, nil
}

// IsNoSuchUser reports whether a rejection means the mailbox does not exist,
// as opposed to a policy or reputation block that happens to use 550.
func IsNoSuchUser(status *MailboxStatus) bool {
	if status == nil || status.Accepted {
		return false
	}

	msg := strings.ToLower(status.Message)

	blockKeywords := []string{
		"spam", "block", "banned", "blacklisted", "policy",
		"relay", "access denied", "rejected by network", "unauthenticated",
		"reputation", "spf", "dmarc", "dkim", "quota",
		"rate limit", "temporarily", "reverse dns", "spamhaus",
		"client host rejected", "not permitted", "greylist",
	}
	for _, kw := range blockKeywords {
		if strings.Contains(msg, kw) {
			return false
		}
	}

	if status.Code == 550 || status.Code == 551 || status.Code == 553 {
		return true
	}
	return strings.Contains(msg, "5.1.1") && status.Code >= 500
}

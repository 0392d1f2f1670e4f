package proxy

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
)

// Manager rotates outbound probes across a proxy pool and bounds how many
// proxied connections are open at once. A nil or empty Manager dials direct.
type Manager struct {
	proxies     []*url.URL
	counter     uint64
	slots       chan struct{}
	smtpEnabled bool
}

// New parses the proxy URLs. A limit of zero defaults to one slot per proxy.
func New(proxyList []string, limit int, enableSMTP bool) (*Manager, error) {
	var parsed []*url.URL

	for _, p := range proxyList {
		if p == "" {
			continue
		}
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL '%s': %w", p, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL '%s': scheme and host are required", p)
		}
		parsed = append(parsed, u)
	}

	if limit <= 0 {
		limit = len(parsed)
		if limit == 0 {
			limit = 10
		}
	}

	return &Manager{
		proxies:     parsed,
		slots:       make(chan struct{}, limit),
		smtpEnabled: enableSMTP,
	}, nil
}

// Next returns the next proxy in rotation, or nil when none are configured.
func (m *Manager) Next() *url.URL {
	if m == nil || len(m.proxies) == 0 {
		return nil
	}
	n := atomic.AddUint64(&m.counter, 1)
	return m.proxies[(n-1)%uint64(len(m.proxies))]
}

func (m *Manager) Enabled() bool {
	return m != nil && len(m.proxies) > 0
}

// SMTPEnabled reports whether port-25 probes should also go through the pool.
func (m *Manager) SMTPEnabled() bool {
	return m.Enabled() && m.smtpEnabled
}

func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.proxies)
}

func (m *Manager) Capacity() int {
	if m == nil {
		return 0
	}
	return cap(m.slots)
}

// Acquire blocks until a proxy slot is free or ctx is done.
func (m *Manager) Acquire(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for proxy slot: %w", ctx.Err())
	}
}

func (m *Manager) Release() {
	<-m.slots
}

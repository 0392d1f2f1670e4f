package proxy

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	netproxy "golang.org/x/net/proxy"
)

// proxyConn gives the slot back to the Manager when the caller closes it.
type proxyConn struct {
	net.Conn
	release     func()
	releaseOnce sync.Once
}

func (pc *proxyConn) Close() error {
	pc.releaseOnce.Do(pc.release)
	return pc.Conn.Close()
}

// DialContext connects to addr through the next proxy in rotation, or directly
// when the Manager has no proxies.
func (m *Manager) DialContext(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
	directDialer := &net.Dialer{Timeout: timeout}

	pURL := m.Next()
	if pURL == nil {
		return directDialer.DialContext(ctx, network, addr)
	}

	if err := m.Acquire(ctx); err != nil {
		return nil, err
	}

	// Resolve locally so SOCKS4-style proxies without remote DNS still work.
	if host, port, err := net.SplitHostPort(addr); err == nil && net.ParseIP(host) == nil {
		ips, lookupErr := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if lookupErr == nil && len(ips) > 0 {
			resolved := ips[0].String()
			for _, ip := range ips {
				if ip.To4() != nil {
					resolved = ip.String()
					break
				}
			}
			addr = net.JoinHostPort(resolved, port)
		}
	}

	start := time.Now()
	pdialer, err := netproxy.FromURL(pURL, directDialer)
	if err != nil {
		m.Release()
		return nil, err
	}

	var conn net.Conn
	if cdialer, ok := pdialer.(netproxy.ContextDialer); ok {
		conn, err = cdialer.DialContext(ctx, network, addr)
	} else {
		conn, err = pdialer.Dial(network, addr)
	}
	if err != nil {
		m.Release()
		log.Debug().Err(err).Str("addr", addr).Str("proxy", pURL.Host).Dur("took", time.Since(start)).Msg("proxy dial failed")
		return nil, err
	}

	log.Debug().Str("addr", addr).Str("proxy", pURL.Host).Dur("took", time.Since(start)).Msg("proxy dial ok")
	return &proxyConn{Conn: conn, release: m.Release}, nil
}

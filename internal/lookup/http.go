package lookup

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"mailaudit/internal/apperr"
	"mailaudit/internal/proxy"
)

// MaxBodyBytes caps fetched documents slightly above the 50MB sitemap limit so
// oversize documents can still be measured and reported.
const MaxBodyBytes = 64 << 20

type contextKey string

const proxyCtxKey contextKey = "proxyURL"

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher performs outbound GET/HEAD requests.
type Fetcher interface {
	Get(ctx context.Context, rawURL, userAgent string) (*Response, error)
	Head(ctx context.Context, rawURL, userAgent string) (int, error)
}

// HTTPFetcher is the production Fetcher. Requests rotate through the proxy
// pool when one is configured.
type HTTPFetcher struct {
	client  *http.Client
	proxies *proxy.Manager
	timeout time.Duration
}

func NewHTTPFetcher(proxies *proxy.Manager, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		proxies: proxies,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: func(req *http.Request) (*url.URL, error) {
					if p, ok := req.Context().Value(proxyCtxKey).(*url.URL); ok && p != nil {
						return p, nil
					}
					return nil, nil
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (f *HTTPFetcher) do(req *http.Request) (*http.Response, error) {
	if pURL := f.proxies.Next(); pURL != nil {
		if err := f.proxies.Acquire(req.Context()); err != nil {
			return nil, err
		}
		defer f.proxies.Release()
		req = req.WithContext(context.WithValue(req.Context(), proxyCtxKey, pURL))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyHTTP(err)
	}
	return resp, nil
}

func (f *HTTPFetcher) Get(ctx context.Context, rawURL, userAgent string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.InputInvalid, "invalid URL", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := f.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, classifyHTTP(err)
	}
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *HTTPFetcher) Head(ctx context.Context, rawURL, userAgent string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.InputInvalid, "invalid URL", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := f.do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func classifyHTTP(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.UpstreamTimeout, "request timed out", err)
	}
	return apperr.Wrap(apperr.UpstreamUnavailable, "request failed", err)
}

// Package transport provides the HTTP client shared by extractors and the
// download workers: cookie jar, default headers, optional proxy, and
// classification of HTTP failures into error kinds.
package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"imagedl/pkg/errors"
	"imagedl/pkg/ratelimit"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Fetcher is the read side consumed by extractors and download workers.
type Fetcher interface {
	// Fetch opens the resource. The returned size is -1 when the server
	// does not announce a Content-Length.
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error)
	// FetchBytes reads the whole resource into memory, for HTML and JSON
	// endpoints.
	FetchBytes(ctx context.Context, rawURL string) ([]byte, error)
}

// Options configure a Client.
type Options struct {
	// UserAgent overrides the default browser user agent.
	UserAgent string
	// Proxy is an optional proxy URL applied to every request.
	Proxy string
	// Timeout bounds a single request end to end. Zero means no client
	// timeout; callers bound requests through the context instead.
	Timeout time.Duration
	// Headers are extra headers sent with every request.
	Headers map[string]string
	// RequestLimiter, when set, paces requests across all callers of the
	// client, independent of the byte-level download throttle.
	RequestLimiter ratelimit.Limiter
}

// Client is an HTTP fetcher with a shared cookie jar.
type Client struct {
	http      *http.Client
	userAgent string
	headers   map[string]string
	limiter   ratelimit.Limiter
}

// New builds a Client. The cookie jar is created fresh; use SetCookies to
// seed it from an exported cookies file.
func New(opts Options) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindUnknown, err, "creating cookie jar")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, errors.Newf(errors.KindValidation, "invalid proxy URL %q", opts.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		http: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		userAgent: ua,
		headers:   opts.Headers,
		limiter:   opts.RequestLimiter,
	}, nil
}

// SetCookies seeds the jar with cookies for the given URL.
func (c *Client) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.http.Jar.SetCookies(u, cookies)
}

// Fetch performs a GET and returns the body stream on 2xx. Non-2xx statuses
// close the body and return a classified error carrying the status code.
func (c *Client) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, errors.Wrap(errors.KindValidation, err, "building request")
	}
	c.applyHeaders(req)

	if c.limiter != nil {
		if err := waitForSlot(ctx, c.limiter); err != nil {
			return nil, 0, errors.Wrap(errors.KindCancelled, err, "request cancelled")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, errors.Wrap(errors.KindCancelled, ctx.Err(), "request cancelled")
		}
		return nil, 0, errors.Wrap(errors.KindNetwork, err, "request failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		kind := errors.KindFromStatusCode(resp.StatusCode)
		return nil, 0, errors.Newf(kind, "GET %s: HTTP %d", rawURL, resp.StatusCode).
			WithCode(resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

// FetchBytes fetches the resource and reads the entire body.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, err, "reading response body")
	}
	return data, nil
}

// waitForSlot polls the request pacer so cancellation interrupts a caller
// parked on it.
func waitForSlot(ctx context.Context, l ratelimit.Limiter) error {
	for !l.Allow() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

package opendata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://opendata.paris.fr/api/records/1.0/search/"
	DefaultUserAgent = "analytics-data-pipeline/1.0"
	DefaultTimeout   = 60 * time.Second
)

// Client issues a single search query and returns the parsed page.
type Client interface {
	Search(ctx context.Context, params Params) (Page, error)
}

type HTTPClient struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

type Option func(*HTTPClient)

func WithUserAgent(ua string) Option {
	return func(c *HTTPClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client. Its Timeout is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRequestInterval spaces consecutive requests at least d apart.
func WithRequestInterval(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	c := &HTTPClient{
		baseURL:   u,
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) Search(ctx context.Context, params Params) (Page, error) {
	u := *c.baseURL
	q := u.Query()
	for k, vs := range params.Values() {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	target := u.String()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, &TransportError{URL: target, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, &TransportError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, &TransportError{URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        errors.New(snippet(body)),
		}
	}

	page, err := DecodePage(body)
	if err != nil {
		return Page{}, &MalformedResponseError{URL: target, Err: err}
	}
	return page, nil
}

func snippet(body []byte) string {
	const limit = 256
	if len(body) == 0 {
		return "empty body"
	}
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

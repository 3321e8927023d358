// Package polygon is a small client for the polygon.io REST API covering
// the endpoints needed to build candles from trades.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is polygon.io's REST endpoint.
const DefaultBaseURL = "https://api.polygon.io"

// Client represents a polygon.io API client. It is safe for concurrent use.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Limiter *rate.Limiter // optional, shared by all requests
	Logger  *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.BaseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

// WithTimeout sets the timeout of the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		var h http.Client
		if c.HTTP != nil {
			h = *c.HTTP
		}
		h.Timeout = d
		c.HTTP = &h
	}
}

// WithRateLimit caps the client at n requests per minute. n <= 0 disables it.
func WithRateLimit(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.Limiter = nil
			return
		}
		c.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// NewClient creates a new polygon.io API client
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// endpoint builds an absolute URL for path on the client's base URL.
func (c *Client) endpoint(path string, q url.Values) (*url.URL, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("polygon: missing base url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("polygon: bad base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// get signs u with the API key, sends it and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, u *url.URL, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("polygon: missing api key")
	}

	q := u.Query()
	q.Set("apiKey", c.APIKey)
	signed := *u
	signed.RawQuery = q.Encode()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("polygon: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		// the url in a *url.Error carries the api key
		return fmt.Errorf("execute request %s: %w", u.Path, redact(err, c.APIKey))
	}
	defer resp.Body.Close()

	c.logger().Debug("polygon request",
		"path", u.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return newAPIError(resp.StatusCode, b)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "REDACTED"), err: err}
}

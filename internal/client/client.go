// Package client talks to the projtrack REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout matches the session lifecycle's request deadline.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

// Client wraps the backend endpoints. The embedded cookie jar carries the
// session cookie between calls.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a client for the API rooted at baseURL, e.g. "http://localhost:5001/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("client: cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	return c, nil
}

// Cookies returns the cookies held for the API origin.
func (c *Client) Cookies() []*http.Cookie {
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// SetCookies seeds the jar, typically with cookies saved by a previous run.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.httpClient.Jar.SetCookies(c.baseURL, cookies)
}

type envelope struct {
	Success       bool            `json:"success"`
	Authenticated *bool           `json:"authenticated,omitempty"`
	Message       string          `json:"message,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type userData struct {
	User *wireIdentity `json:"user"`
}

// call performs one request and returns the decoded envelope together with
// the HTTP status. Errors are *APIError or *TransportError.
func (c *Client) call(ctx context.Context, method, path string, body any) (*envelope, int, error) {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, &TransportError{Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", slog.String("op", op), slog.Any("error", err))
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.logger.Debug("api request", slog.String("op", op), slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Op: op, Err: err}
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return &env, resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, resp.StatusCode, &APIError{StatusCode: resp.StatusCode}
		}
		return nil, resp.StatusCode, &TransportError{Op: op, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	return &env, resp.StatusCode, nil
}

// do is call plus the success check and decoding of data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	env, status, err := c.call(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest || !env.Success {
		return &APIError{StatusCode: status, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

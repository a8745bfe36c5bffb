package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"VolPulse/pkg/logger"
)

// ClientOption configures Client.
type ClientOption func(*Client)

// Client is an HTTP GET/JSON client with exponential-backoff retries for
// transient failures (timeouts, HTTP 429). Non-transient errors are
// returned after the first attempt.
type Client struct {
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	proxyURL    string
	client      *http.Client
	log         *logger.Logger
}

// NewClient creates a new HTTP client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:     20 * time.Second,
		maxAttempts: 3,
		backoff:     250 * time.Millisecond,
		log:         logger.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := http.DefaultTransport
	if c.proxyURL != "" {
		if u, err := url.Parse(c.proxyURL); err == nil {
			t := http.DefaultTransport.(*http.Transport).Clone()
			t.Proxy = http.ProxyURL(u)
			transport = t
		}
	}
	c.client = &http.Client{Timeout: c.timeout, Transport: transport}
	return c
}

// GetJSON performs a GET request and decodes the JSON response into dest.
// Retries transient failures with doubling backoff; when all attempts are
// spent the returned error wraps ErrRetriesExhausted.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, dest interface{}) error {
	var lastErr error
	delay := c.backoff

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying request",
				logger.Int("attempt", attempt),
				logger.Duration("backoff", delay),
				logger.String("url", rawURL),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := c.getOnce(ctx, rawURL, query, dest)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func (c *Client) getOnce(ctx context.Context, rawURL string, query url.Values, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetries sets the number of attempts and the starting backoff.
func WithRetries(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithProxy routes requests through the given proxy URL.
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Package httpfetch is the shared outbound HTTP client used by the retailer price sources.
package httpfetch

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

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
)

// DefaultUserAgent mimics a desktop browser; several retailers reject bare Go clients
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Options configures a Client
type Options struct {
	Name string
	// Timeout bounds a whole request including the body read
	Timeout time.Duration
	// RequestsPerSecond and Burst feed the outbound rate limiter
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	// MaxBodyBytes caps how much of a response body is read
	MaxBodyBytes int64
	UserAgent    string
	Headers      map[string]string
	Logger       *slog.Logger
}

// Client executes rate-limited GET/POST requests with retry on transient failures
type Client struct {
	name        string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	maxAttempts int
	maxBody     int64
	userAgent   string
	headers     map[string]string
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a client, filling unset options with defaults
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = obs.Component("httpfetch")
	}

	return &Client{
		name: opts.Name,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		maxAttempts: opts.MaxAttempts,
		maxBody:     opts.MaxBodyBytes,
		userAgent:   opts.UserAgent,
		headers:     opts.Headers,
		logger:      logger.With("source", opts.Name),
		sleep:       sleepContext,
	}
}

// Get fetches reqURL and returns the body of a 200 response
func (c *Client) Get(ctx context.Context, reqURL string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, reqURL, "", headers)
}

// GetJSON fetches reqURL and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, reqURL string, headers map[string]string, out interface{}) error {
	body, err := c.Get(ctx, reqURL, withAccept(headers, "application/json"))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// PostForm posts an url-encoded form and decodes the JSON response into out
func (c *Client) PostForm(ctx context.Context, reqURL string, form url.Values, headers map[string]string, out interface{}) error {
	h := withAccept(headers, "application/json")
	h["Content-Type"] = "application/x-www-form-urlencoded"
	body, err := c.do(ctx, http.MethodPost, reqURL, form.Encode(), h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, reqURL, payload string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		body, status, err := c.doRequest(ctx, method, reqURL, payload, headers)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusNotFound:
			return nil, domain.ErrPriceNotFound
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("%w: %s status %d", domain.ErrSourceUnavailable, c.name, status)
		default:
			return nil, fmt.Errorf("%w: %s status %d", domain.ErrSourceUnavailable, c.name, status)
		}

		c.logger.Debug("request failed", "attempt", attempt, "url", reqURL, "error", lastErr)
		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, exponentialBackoff(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// doRequest executes one request with the client's headers and reads a bounded body
func (c *Client) doRequest(ctx context.Context, method, reqURL, payload string, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if payload != "" {
		reader = strings.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %v", domain.ErrSourceUnavailable, err)
	}
	return body, resp.StatusCode, nil
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(500<<(attempt-1)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withAccept(headers map[string]string, accept string) map[string]string {
	h := make(map[string]string, len(headers)+2)
	h["Accept"] = accept
	for k, v := range headers {
		h[k] = v
	}
	return h
}

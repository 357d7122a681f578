// Package reddit talks to Reddit's public endpoints: profile and subreddit
// statistics, post content and session credential checks.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cabinet/cabinet/internal/metrics"
)

const (
	// DefaultBaseURL is the public web endpoint.
	DefaultBaseURL = "https://www.reddit.com"
	// DefaultOAuthURL is the bearer-token API endpoint.
	DefaultOAuthURL = "https://oauth.reddit.com"

	// maxBodyBytes caps the bytes read from any response.
	maxBodyBytes = 4 << 20
	// errorSnippetLen is how much of an error body ends up in messages.
	errorSnippetLen = 200
)

// Errors returned by the client.
var (
	ErrUserNotFound        = errors.New("reddit user not found")
	ErrSubredditNotFound   = errors.New("subreddit not found")
	ErrPostNotFound        = errors.New("post not found")
	ErrRateLimited         = errors.New("reddit rate limited the request")
	ErrCredentialsRejected = errors.New("could not determine username from credentials")
	ErrUnauthorized        = errors.New("reddit rejected the credentials")
)

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit %s: unexpected status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	OAuthURL  string
	UserAgent string
	// RPS is the shared outbound request rate. Zero or negative disables
	// throttling.
	RPS     float64
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics metrics.Recorder
	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
}

// Client is a throttled Reddit HTTP client. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	baseURL   string
	oauthURL  string
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultOAuthURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cabinet/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = newHTTPClient(cfg.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		http:      cfg.HTTPClient,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		oauthURL:  strings.TrimSuffix(cfg.OAuthURL, "/"),
		userAgent: cfg.UserAgent,
		limiter:   limiter,
		logger:    cfg.Logger.With("component", "reddit"),
		metrics:   cfg.Metrics,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// request describes one outbound call.
type request struct {
	endpoint string // metrics label
	url      string
	headers  map[string]string
}

// response is a fully read response body.
type response struct {
	status int
	body   []byte
}

// do waits for the shared limiter, performs the request and reads the body.
// Non-2xx statuses are returned as a response, not an error, so callers can
// map them to domain errors.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	start := time.Now()
	status := 0
	defer func() {
		c.metrics.ObserveRedditRequest(req.endpoint, status, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("reddit %s: wait for rate limiter: %w", req.endpoint, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.url, nil)
	if err != nil {
		return nil, fmt.Errorf("reddit %s: build request: %w", req.endpoint, err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json, text/html;q=0.9")
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reddit %s: %w", req.endpoint, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reddit %s: read body: %w", req.endpoint, err)
	}

	c.logger.Debug("reddit request",
		slog.String("endpoint", req.endpoint),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	return &response{status: status, body: body}, nil
}

// checkStatus maps common failure statuses. notFound is returned for 404.
func checkStatus(endpoint string, resp *response, notFound error) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusNotFound && notFound != nil:
		return notFound
	case resp.status == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.status)
	default:
		return &StatusError{Endpoint: endpoint, Status: resp.status, Body: snippet(resp.body)}
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetLen {
		s = s[:errorSnippetLen] + "..."
	}
	return s
}

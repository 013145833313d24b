// Package request is the shared outbound HTTP client. Requests are queued per
// provider, paced by a rate limiter, and retried with exponential backoff.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"odysseywalk/pkg/tracker"
	"odysseywalk/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("Odysseywalk/%s", version.Version)

// ErrMaxRetries is returned when every attempt hit a retryable failure.
var ErrMaxRetries = errors.New("max retries exceeded")

// StatusError reports a non-2xx response that was not retried.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// Config tunes the client. Zero values fall back to DefaultConfig.
type Config struct {
	Timeout       time.Duration
	MaxAttempts   int
	BaseDelay     time.Duration
	RatePerSecond float64
	Burst         int
	UserAgent     string
}

// DefaultConfig returns the settings used by the narration and answer clients.
func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		RatePerSecond: 5,
		Burst:         2,
		UserAgent:     defaultUserAgent,
	}
}

// Response is a successful upstream response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client handles HTTP requests with queuing, pacing and tracking.
type Client struct {
	httpClient *http.Client
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff
	cfg        Config

	// Queues per provider (domain)
	queues   map[string]chan job
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// job represents a queued request.
type job struct {
	req         *http.Request
	body        []byte
	headers     map[string]string
	maxAttempts int
	respChan    chan jobResult
}

type jobResult struct {
	resp *Response
	err  error
}

// New creates a new Client. A nil tracker disables usage tracking.
func New(t *tracker.Tracker, cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if t == nil {
		t = tracker.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracker:    t,
		backoff:    NewProviderBackoff(cfg.BaseDelay, 30*time.Second),
		cfg:        cfg,
		queues:     make(map[string]chan job),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Tracker returns the usage tracker.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// Options adjust a single call.
type Options struct {
	Headers map[string]string
	// MaxAttempts overrides the client's attempt count when > 0.
	MaxAttempts int
}

// Get performs a queued GET request.
func (c *Client) Get(ctx context.Context, u string, opts Options) (*Response, error) {
	return c.Do(ctx, http.MethodGet, u, nil, opts)
}

// PostJSON marshals payload and posts it as application/json.
func (c *Client) PostJSON(ctx context.Context, u string, payload any, opts Options) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	headers := make(map[string]string, len(opts.Headers)+1)
	headers["Content-Type"] = "application/json"
	for k, v := range opts.Headers {
		headers[k] = v
	}
	opts.Headers = headers
	return c.Do(ctx, http.MethodPost, u, body, opts)
}

// Do enqueues a request on its provider's queue and waits for the result.
func (c *Client) Do(ctx context.Context, method, u string, body []byte, opts Options) (*Response, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	req, err := http.NewRequestWithContext(ctx, method, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	attempts := c.cfg.MaxAttempts
	if opts.MaxAttempts > 0 {
		attempts = opts.MaxAttempts
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, body: body, headers: opts.Headers, maxAttempts: attempts, respChan: respChan})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.resp, res.err
	}
}

func normalizeProvider(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	switch {
	case strings.HasSuffix(host, "openrouter.ai"):
		return "openrouter"
	case strings.HasSuffix(host, "googleapis.com"):
		return "gemini"
	case strings.HasSuffix(host, "fish.audio"):
		return "fishaudio"
	case strings.HasSuffix(host, "gradium.ai"):
		return "gradium"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		lim := rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), c.cfg.Burst)
		c.limiters[provider] = lim
		go c.worker(provider, q, lim)
	}
	c.mu.Unlock()

	// Blocks when the queue is full, throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job, lim *rate.Limiter) {
	for j := range q {
		ctx := j.req.Context()
		if ctx.Err() != nil {
			slog.Debug("Job dropped from queue (context expired)", "provider", provider, "error", ctx.Err())
			j.respChan <- jobResult{err: ctx.Err()}
			continue
		}

		if err := c.backoff.Wait(ctx, provider); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}

		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.executeWithBackoff(j.req, j.body, j.maxAttempts)
		switch {
		case err == nil:
			c.tracker.TrackAPISuccess(provider)
			c.backoff.RecordSuccess(provider)
		case ctx.Err() != nil:
			// caller gave up; not the provider's fault
		default:
			c.tracker.TrackAPIFailure(provider)
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500 {
				c.backoff.RecordFailure(provider)
			}
		}

		j.respChan <- jobResult{resp: resp, err: err}
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(req *http.Request, body []byte, maxAttempts int) (*Response, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			slog.Warn("Request failed, retrying", "host", req.URL.Host, "attempt", attempt+1, "error", err)
			if err := c.sleep(req.Context(), attempt, maxAttempts); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			slog.Warn("API Backoff", "status", resp.StatusCode, "host", req.URL.Host, "attempt", attempt+1)
			if attempt == maxAttempts-1 {
				return nil, &StatusError{StatusCode: resp.StatusCode}
			}
			if err := c.sleep(req.Context(), attempt, maxAttempts); err != nil {
				return nil, err
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: data}
		}
		return &Response{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}, nil
	}

	return nil, ErrMaxRetries
}

func (c *Client) sleep(ctx context.Context, attempt, maxAttempts int) error {
	if attempt == maxAttempts-1 {
		return ErrMaxRetries
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.BaseDelay
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

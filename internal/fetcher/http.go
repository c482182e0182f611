package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/heimdall-intel/asis-cli/internal/resilience"
)

// retryAfterCeiling caps a server-requested Retry-After delay.
const retryAfterCeiling = 60 * time.Second

// Options configures the shared HTTP client.
type Options struct {
	UserAgent string
	// Timeout is the per-request connect+read deadline. Default: 10s.
	Timeout time.Duration
	// Retry overrides the default policy: 3 attempts with waits of 1s
	// then 2s between them.
	Retry resilience.RetryConfig
	// RateLimits maps host → token bucket. Each host not listed gets its
	// own permissive default limiter (20/s, burst 20).
	RateLimits map[string]*rate.Limiter
	// HostConcurrency caps in-flight requests per host. Default: 4.
	HostConcurrency int
}

// Client is the shared retrying transport used by every source adapter:
// per-request timeouts, exponential backoff on transient errors, and
// per-host rate limits and concurrency caps.
type Client struct {
	http  *http.Client
	opts  Options
	retry resilience.RetryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	slots    map[string]chan struct{}
}

// NewClient creates a Client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "asis-cli/1.0"
	}
	if opts.HostConcurrency <= 0 {
		opts.HostConcurrency = 4
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}

	limiters := make(map[string]*rate.Limiter)
	for host, lim := range opts.RateLimits {
		limiters[host] = lim
	}

	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		retry:    retry,
		limiters: limiters,
		slots:    make(map[string]chan struct{}),
	}
}

// DefaultRateLimits returns the per-host token buckets for known
// upstreams. FRED tolerates bursts; NewsAPI free tier does not.
func DefaultRateLimits() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"api.stlouisfed.org":       rate.NewLimiter(5, 5),
		"newsapi.org":              rate.NewLimiter(1, 2),
		"query1.finance.yahoo.com": rate.NewLimiter(2, 4),
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(20, 20)
	c.limiters[host] = lim
	return lim
}

func (c *Client) slotFor(host string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[host]; ok {
		return s
	}
	s := make(chan struct{}, c.opts.HostConcurrency)
	c.slots[host] = s
	return s
}

// Get fetches rawURL and returns the response body. Transient failures
// (network, 5xx, 429) are retried per the client's policy; 4xx other
// than 429 surface immediately as PermanentError. Waiting for a rate
// token or host slot is bounded by ctx.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	host := u.Host

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(host, "get")
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return c.attempt(ctx, rawURL, host)
	})
}

func (c *Client) attempt(ctx context.Context, rawURL, host string) ([]byte, error) {
	if err := c.limiterFor(host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	slot := c.slotFor(host)
	select {
	case slot <- struct{}{}:
		defer func() { <-slot }()
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "fetcher: host slot wait")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: do request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		te := resilience.NewTransientError(eris.Errorf("fetcher: http 429 from %s", host), resp.StatusCode)
		te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		zap.L().Warn("rate limited by upstream",
			zap.String("host", host),
			zap.Duration("retry_after", te.RetryAfter),
		)
		return nil, te
	case resp.StatusCode >= 500:
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, host), resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, resilience.NewPermanentError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, host), resp.StatusCode)
	}

	return body, nil
}

// GetJSON fetches rawURL and decodes the response into dst. A body that
// fails to decode is a permanent upstream error: retrying the same
// window returns the same bytes.
func (c *Client) GetJSON(ctx context.Context, rawURL string, dst any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "fetcher: decode json"), 0)
	}
	return nil
}

// parseRetryAfter interprets a Retry-After header as either seconds or
// an HTTP date, capped at the ceiling. Zero when absent or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return min(time.Duration(secs)*time.Second, retryAfterCeiling)
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return min(d, retryAfterCeiling)
		}
	}
	return 0
}

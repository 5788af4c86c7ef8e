// Package remote talks to the authoritative library catalog over HTTP.
//
// Every call carries its own deadline, goes through a client-side rate
// limiter and a circuit breaker, and reports failures as errors wrapping
// ErrUnavailable or ErrNotApplied so callers can fall back to the local cache.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mrlokans/bibliotheek/internal/config"
)

// Budget selects the deadline applied to a call.
type Budget int

const (
	// Interactive is used for single-entity calls and user-facing lists.
	Interactive Budget = iota
	// Bulk is used for full-sync page fetches.
	Bulk
)

const (
	defaultInteractiveTimeout = 30 * time.Second
	defaultBulkTimeout        = 2 * time.Minute
	maxRetryDelay             = 30 * time.Second
	retryBackoffFactor        = 2
	maxErrorBody              = 512
)

type Options struct {
	BaseURL            string
	InteractiveTimeout time.Duration
	BulkTimeout        time.Duration
	RateLimit          float64
	RateBurst          int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	BreakerFailures    int
	BreakerCooldown    time.Duration
}

func OptionsFromConfig(cfg config.Remote) Options {
	return Options{
		BaseURL:            cfg.BaseURL,
		InteractiveTimeout: cfg.InteractiveTimeout,
		BulkTimeout:        cfg.BulkTimeout,
		RateLimit:          cfg.RateLimit,
		RateBurst:          cfg.RateBurst,
		MaxRetries:         cfg.MaxRetries,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		BreakerFailures:    cfg.BreakerFailures,
		BreakerCooldown:    cfg.BreakerCooldown,
	}
}

// Client is the shared transport for every Gateway. It does not attach
// credentials itself; pass an *http.Client whose transport does.
type Client struct {
	base    *url.URL
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	breaker *breaker
	log     *zap.Logger
}

func NewClient(httpClient *http.Client, opts Options, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote base URL %q", opts.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.InteractiveTimeout <= 0 {
		opts.InteractiveTimeout = defaultInteractiveTimeout
	}
	if opts.BulkTimeout <= 0 {
		opts.BulkTimeout = defaultBulkTimeout
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		base:    base,
		http:    httpClient,
		opts:    opts,
		limiter: limiter,
		breaker: newBreaker(opts.BreakerFailures, opts.BreakerCooldown),
		log:     log.Named("remote"),
	}, nil
}

// Available reports false while the breaker is failing calls fast.
func (c *Client) Available() bool {
	return !c.breaker.open()
}

func (c *Client) timeout(b Budget) time.Duration {
	if b == Bulk {
		return c.opts.BulkTimeout
	}
	return c.opts.InteractiveTimeout
}

// request describes one logical call. write selects ErrNotApplied for
// non-2xx answers; retry enables backoff on 429 and 5xx.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	budget Budget
	write  bool
	retry  bool
}

// do performs r and decodes a JSON response into out when out is non-nil.
// It returns true when the response carried a body that was decoded.
func (c *Client) do(ctx context.Context, r request, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout(r.budget))
	defer cancel()

	attempts := 1
	if r.retry && c.opts.MaxRetries > 0 {
		attempts = c.opts.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, c.unavailable(r.op, ctx.Err())
			case <-time.After(c.retryDelay(attempt)):
			}
		}

		decoded, err := c.attempt(ctx, r, out)
		if err == nil {
			return decoded, nil
		}
		lastErr = err

		var status *StatusError
		if errors.Is(err, ErrBreakerOpen) || (errors.As(err, &status) && !status.Transient()) {
			break
		}
		c.log.Debug("remote call failed",
			zap.String("op", r.op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return false, lastErr
}

func (c *Client) attempt(ctx context.Context, r request, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, c.unavailable(r.op, err)
	}

	var (
		resp *http.Response
		body []byte
	)
	err := c.breaker.call(func() (bool, error) {
		req, err := c.newRequest(ctx, r)
		if err != nil {
			return false, err
		}
		resp, err = c.http.Do(req)
		if err != nil {
			return true, c.unavailable(r.op, err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return true, c.unavailable(r.op, err)
		}
		return resp.StatusCode >= http.StatusInternalServerError, nil
	})
	if err != nil {
		return false, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		category := ErrUnavailable
		if r.write {
			category = ErrNotApplied
		}
		return false, &StatusError{
			Op:         r.op,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
			category:   category,
		}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		category := ErrUnavailable
		if r.write {
			category = ErrNotApplied
		}
		return false, fmt.Errorf("%s: %w: failed to decode response: %w", r.op, category, err)
	}
	return true, nil
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + r.path
	if r.query != nil {
		u.RawQuery = r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", r.op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.opts.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= retryBackoffFactor
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

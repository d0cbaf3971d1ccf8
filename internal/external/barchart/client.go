// Package barchart fetches daily futures history from Barchart's public site.
//
// The site hands out an XSRF-TOKEN cookie on any front-end page; the
// historical endpoint expects it echoed back, URL-decoded, in X-XSRF-TOKEN.
package barchart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tagomatech/ETL/internal/contracts"
	"github.com/tagomatech/ETL/pkg/config"
	"github.com/tagomatech/ETL/pkg/httputil"
	"github.com/tagomatech/ETL/pkg/logger"
)

const (
	xsrfCookie = "XSRF-TOKEN"
	xsrfHeader = "X-XSRF-TOKEN"
	eodPath    = "/proxies/timeseries/historical/queryeod.ashx"

	// SourceName labels cache keys and metrics
	SourceName = "barchart"
)

var (
	// ErrHandshake means the landing page did not set the XSRF cookie
	ErrHandshake = errors.New("barchart auth handshake failed: no XSRF-TOKEN cookie")
	// ErrUnrecognisedPayload means the endpoint answered with neither CSV nor JSON
	ErrUnrecognisedPayload = errors.New("unrecognised barchart payload")
)

// Client talks to Barchart anonymously
// ⭐ SSOT: Barchart 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    *url.URL
	maxRecords int

	mu    sync.Mutex
	ready bool
}

// NewClient builds a cookie-keeping, throttled client from config
// Extra options (for example a shared redis waiter) are appended after the defaults.
func NewClient(cfg config.BarchartConfig, log *logger.Logger, opts ...httputil.Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid barchart base URL %q", cfg.BaseURL)
	}
	if log == nil {
		log = logger.Nop()
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	defaults := []httputil.Option{
		httputil.WithTimeout(cfg.Timeout),
		httputil.WithCookieJar(),
		httputil.WithHeader("User-Agent", cfg.UserAgent),
		httputil.WithWaiter(throttle(limiter, cfg.MaxJitter)),
	}

	return &Client{
		httpClient: httputil.New(log, append(defaults, opts...)...),
		logger:     log.Module(SourceName),
		baseURL:    base,
		maxRecords: cfg.MaxRecords,
	}, nil
}

// throttle combines a token bucket with random jitter, mimicking a person paging through the site
func throttle(limiter *rate.Limiter, maxJitter time.Duration) httputil.Waiter {
	return func(ctx context.Context) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if maxJitter <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rand.N(maxJitter)):
			return nil
		}
	}
}

// Handshake loads the landing page so the server sets the XSRF cookie
func (c *Client) Handshake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakeLocked(ctx)
}

func (c *Client) handshakeLocked(ctx context.Context) error {
	resp, err := c.httpClient.Get(ctx, c.baseURL.String())
	if err != nil {
		return fmt.Errorf("barchart landing page: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if _, ok := c.token(); !ok {
		c.ready = false
		return ErrHandshake
	}
	c.ready = true
	c.logger.Debug("Barchart session established")
	return nil
}

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	return c.handshakeLocked(ctx)
}

// token returns the URL-decoded XSRF cookie value
func (c *Client) token() (string, bool) {
	for _, ck := range c.httpClient.Cookies(c.baseURL) {
		if ck.Name != xsrfCookie {
			continue
		}
		v, err := url.QueryUnescape(ck.Value)
		if err != nil {
			v = ck.Value
		}
		return v, true
	}
	return "", false
}

// HistoryParams selects the window of a history request
// A zero Start falls back to the newest MaxRecords rows.
type HistoryParams struct {
	Start      time.Time
	End        time.Time
	MaxRecords int
}

// History pulls daily rows for symbol
// An expired session (HTTP 401/403/419) triggers one fresh handshake.
func (c *Client) History(ctx context.Context, symbol string, p HistoryParams) ([]contracts.RawRow, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	body, status, err := c.queryEOD(ctx, symbol, p)
	if err != nil {
		return nil, err
	}
	if sessionExpired(status) {
		c.logger.ForContract(symbol).Warn("Barchart session expired, re-authenticating")
		if err := c.Handshake(ctx); err != nil {
			return nil, err
		}
		if body, status, err = c.queryEOD(ctx, symbol, p); err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("barchart %s: unexpected status code: %d", symbol, status)
	}

	rows, err := parsePayload(body, symbol)
	if err != nil {
		return nil, fmt.Errorf("barchart %s: %w", symbol, err)
	}
	return rows, nil
}

func (c *Client) queryEOD(ctx context.Context, symbol string, p HistoryParams) ([]byte, int, error) {
	params := url.Values{
		"symbol":           {symbol},
		"data":             {"daily"},
		"volume":           {"total"},
		"order":            {"asc"},
		"dividends":        {"false"},
		"backadjust":       {"false"},
		"daystoexpiration": {"1"},
		"contractroll":     {"combined"},
	}
	// The endpoint ignores maxrecords once a start date is given.
	if !p.Start.IsZero() {
		params.Set("startDate", p.Start.Format("2006-01-02"))
	} else if n := firstPositive(p.MaxRecords, c.maxRecords); n > 0 {
		params.Set("maxrecords", fmt.Sprint(n))
	}
	if !p.End.IsZero() {
		params.Set("endDate", p.End.Format("2006-01-02"))
	}

	u := c.baseURL.JoinPath(eodPath)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain, application/json")
	req.Header.Set("Referer", c.baseURL.JoinPath("futures", "quotes", symbol, "historical-data").String())
	if tok, ok := c.token(); ok {
		req.Header.Set(xsrfHeader, tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func sessionExpired(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == 419
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

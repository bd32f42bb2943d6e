package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	randv2 "math/rand/v2"
	"net"
	stdhttp "net/http"
	"net/url"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"redditstudy/internal/shared"
)

// Client wraps http.Client with logging, a client-side rate limit and retries
// for idempotent requests.
type Client struct {
	hc               *stdhttp.Client
	log              *slog.Logger
	limiter          *rate.Limiter
	retries          int
	baseBackoff      time.Duration
	maxBackoff       time.Duration
	maxRetryDuration time.Duration
	headers          map[string]string
	urlRedactor      func(*url.URL) string
	retryPolicy      func(*stdhttp.Response, error) (time.Duration, bool)
	maxBody          int64
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRateLimit caps outgoing attempts, retries included, at rps with the given burst.
// A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetries enables retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithMaxRetryDuration limits total time spent on retries.
func WithMaxRetryDuration(d time.Duration) Option {
	return func(c *Client) { c.maxRetryDuration = d }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithUserAgent sets the default User-Agent. Reddit throttles generic agents hard.
func WithUserAgent(ua string) Option {
	return WithHeaders(map[string]string{"User-Agent": ua})
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithRetryPolicy sets custom retry policy.
func WithRetryPolicy(f func(*stdhttp.Response, error) (time.Duration, bool)) Option {
	return func(c *Client) {
		if f != nil {
			c.retryPolicy = f
		}
	}
}

// WithMaxBodySize limits how much of a response GetJSON will decode.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 10 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   15 * time.Second,
			Transport: tr,
		},
		log:         slog.Default(),
		baseBackoff: 200 * time.Millisecond,
		headers:     map[string]string{"Accept": "application/json"},
		retryPolicy: retryInfo,
		maxBody:     8 << 20,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StatusError is returned by GetJSON for a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Kind maps the status to the shared error taxonomy.
func (e *StatusError) Kind() shared.Kind {
	switch {
	case e.Code == stdhttp.StatusNotFound || e.Code == stdhttp.StatusGone:
		return shared.KindNotFound
	case e.Code == stdhttp.StatusUnauthorized || e.Code == stdhttp.StatusForbidden:
		return shared.KindUnauthorized
	case e.Code == stdhttp.StatusTooManyRequests:
		return shared.KindRateLimited
	case e.Code == stdhttp.StatusRequestTimeout || e.Code == stdhttp.StatusGatewayTimeout:
		return shared.KindTimeout
	case e.Code >= 500:
		return shared.KindDependencyFailure
	default:
		return shared.KindValidation
	}
}

// GetJSON fetches rawURL and decodes a 2xx JSON body into v. Non-2xx answers
// yield a *StatusError marked with the matching shared kind; transport
// failures are marked as dependency failures.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet, rawURL, nil)
	if err != nil {
		return shared.MarkKind(err, shared.KindValidation)
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		var se *StatusError
		switch {
		case shared.IsCanceled(err) || shared.IsTimeout(err):
			return err
		case errors.As(err, &se):
			return shared.MarkKind(err, se.Kind())
		}
		return shared.MarkKind(err, shared.KindDependencyFailure)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: req.Method, URL: c.redactURL(req.URL), Code: resp.StatusCode}
		return shared.MarkKind(se, se.Kind())
	}
	body := io.Reader(resp.Body)
	if c.maxBody > 0 {
		body = io.LimitReader(resp.Body, c.maxBody)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return shared.MarkKind(shared.Wrapf(err, "decode %s", c.redactURL(req.URL)), shared.KindDependencyFailure)
	}
	return nil
}

// Do sends req with logging, rate limiting and retries. Only GET, HEAD and
// OPTIONS are retried.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	retries := c.retries
	switch req.Method {
	case stdhttp.MethodGet, stdhttp.MethodHead, stdhttp.MethodOptions:
	default:
		retries = 0
	}

	var lastErr error
	start := time.Now()
	for attempt := 1; attempt <= retries+1; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, shared.MarkKind(err, shared.KindTimeout)
			}
		}

		r := req.Clone(ctx)
		for k, v := range c.headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}
		u := c.redactURL(r.URL)
		st := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(st)

		delay, retry := c.retryPolicy(resp, err)
		if !retry || attempt > retries {
			if err != nil {
				c.log.Warn("http request error", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Any("error", err))
				if lastErr == nil || !retry {
					return nil, err
				}
				return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
			}
			if retry {
				// the policy drained the body of a retryable response; report the status
				c.log.Warn("http request status", slog.String("method", r.Method), slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt))
				return nil, &StatusError{Method: r.Method, URL: u, Code: resp.StatusCode}
			}
			c.log.Debug("http request", slog.String("method", r.Method), slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Duration("dur", dur), slog.Int("attempt", attempt))
			return resp, nil
		}

		wait := c.backoff(attempt, delay)
		if deadline, ok := ctx.Deadline(); ok && wait > 0 && time.Until(deadline) < wait {
			// waiting would outlive the caller
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: retry in %s after status %d", context.DeadlineExceeded, wait, resp.StatusCode)
		}
		if c.maxRetryDuration > 0 && time.Since(start)+wait > c.maxRetryDuration {
			if err != nil {
				return nil, fmt.Errorf("retry budget exceeded: %w", err)
			}
			return nil, fmt.Errorf("retry budget exceeded: %w", &StatusError{Method: r.Method, URL: u, Code: resp.StatusCode})
		}

		if err != nil {
			lastErr = err
			c.log.Warn("http request error, retrying", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Any("error", err))
		} else {
			lastErr = &StatusError{Method: r.Method, URL: u, Code: resp.StatusCode}
			c.log.Warn("http request status, retrying", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Duration("retry_after", delay), slog.Int("status", resp.StatusCode))
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// backoff returns the wait before the next attempt: Retry-After when the
// server gave one, otherwise exponential backoff with jitter.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	wait := retryAfter
	if wait <= 0 {
		wait = c.baseBackoff * time.Duration(1<<uint(attempt-1))
		if wait > 0 {
			wait += time.Duration(randv2.Int64N(int64(wait)))
		}
	}
	if c.maxBackoff > 0 && wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return wait
}

func (c *Client) redactURL(u *url.URL) string {
	if c.urlRedactor != nil {
		return c.urlRedactor(u)
	}
	return u.Redacted()
}

// retryAfter parses a Retry-After header in seconds or HTTP-date form.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// drainAndClose drains up to 512KB from body and closes it so the connection is reused.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ue *url.Error
	if !errors.As(err, &ue) {
		return false
	}
	if ne, ok := ue.Err.(net.Error); ok && ne.Timeout() {
		return true
	}
	if oe, ok := ue.Err.(*net.OpError); ok {
		if se, ok := oe.Err.(*os.SyscallError); ok {
			switch se.Err {
			case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
				syscall.ENETDOWN, syscall.ENETUNREACH, syscall.EPIPE,
				syscall.EHOSTUNREACH, syscall.ETIMEDOUT:
				return true
			}
		}
	}
	var dnsErr *net.DNSError
	return errors.As(ue.Err, &dnsErr) && dnsErr.IsTemporary
}

// retryInfo reports whether a response or error is worth another attempt and
// the server-requested delay. Retryable responses have their body drained.
func retryInfo(resp *stdhttp.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, isRetryableError(err)
	}
	switch {
	case resp.StatusCode == 408 || resp.StatusCode == 425:
		drainAndClose(resp.Body)
		return 0, true
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		delay := retryAfter(resp.Header.Get("Retry-After"))
		drainAndClose(resp.Body)
		return delay, true
	default:
		return 0, false
	}
}

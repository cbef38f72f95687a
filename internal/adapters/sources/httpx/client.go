// Package httpx is the shared upstream transport for source clients: auth
// headers, 429 backoff, status classification and envelope probing
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signalroom/internal/core/retry"
	perr "signalroom/internal/platform/errors"
	"signalroom/internal/platform/logger"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultAttempts = 3
	defaultUnit     = time.Second
	defaultUA       = "signalroom"
	maxErrBody      = 2048
)

// Options configures a Client
type Options struct {
	// Name tags log lines and errors, usually the source name
	Name      string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Header is sent on every request (auth, accept)
	Header http.Header

	// MaxAttempts bounds tries of one request under 429, default 3
	MaxAttempts int
	// Unit scales the 2^attempt wait, default 1s
	Unit time.Duration
	// Limiter paces requests when set
	Limiter *rate.Limiter

	// Sleep and HTTP are test seams
	Sleep func(context.Context, time.Duration) error
	HTTP  *http.Client
}

// Client issues requests against one upstream
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
}

// New builds a Client with defaults applied
func New(o Options) *Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultAttempts
	}
	if o.Unit <= 0 {
		o.Unit = defaultUnit
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Sleep == nil {
		o.Sleep = retry.Sleep
	}
	hc := o.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return &Client{http: hc, opts: o, log: *logger.Named("source." + o.Name)}
}

// Request is one upstream call. Path may be absolute (pagination links)
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON encoded when non-nil
	Body any
	// Form is sent urlencoded when non-nil and Body is nil
	Form url.Values
}

// Get is shorthand for a GET Request
func Get(path string, q url.Values) Request {
	return Request{Method: http.MethodGet, Path: path, Query: q}
}

// Post is shorthand for a JSON POST Request
func Post(path string, body any) Request {
	return Request{Method: http.MethodPost, Path: path, Body: body}
}

// Do performs r and returns the body of a 2xx response. 429 is retried after
// 2^attempt units; after MaxAttempts the call fails with ErrorCodeTooManyRequests
// wrapping the last error. Any other non-2xx fails at once
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	var last error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		body, status, err := c.once(ctx, r)
		if err == nil {
			return body, nil
		}
		if status != http.StatusTooManyRequests {
			return nil, err
		}
		last = err
		if attempt == c.opts.MaxAttempts-1 {
			break
		}
		wait := c.opts.Unit << uint(attempt)
		c.log.Warn().
			Str("path", r.Path).
			Int("attempt", attempt+1).
			Int("max_attempts", c.opts.MaxAttempts).
			Dur("wait", wait).
			Msg("rate limited, backing off")
		if err := c.opts.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	c.log.Error().Str("path", r.Path).Int("attempts", c.opts.MaxAttempts).Msg("rate limit retries exhausted")
	return nil, perr.Wrapf(last, perr.ErrorCodeTooManyRequests, "%s: rate limit exceeded after %d attempts", c.opts.Name, c.opts.MaxAttempts)
}

// JSON performs r and decodes the body into out. Numbers decode as json.Number
// when out is an *any or a map
func (c *Client) JSON(ctx context.Context, r Request, out any) error {
	body, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "%s: malformed response body", c.opts.Name)
	}
	return nil
}

func (c *Client) once(ctx context.Context, r Request) ([]byte, int, error) {
	req, err := c.build(ctx, r)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s: %s %s", c.opts.Name, r.method(), r.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("method", r.method()).
		Str("path", r.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream response")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, perr.Wrapf(err, perr.ErrorCodeUnavailable, "%s: read body", c.opts.Name)
		}
		return body, resp.StatusCode, nil
	}

	tail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return nil, resp.StatusCode, perr.Newf(StatusCode(resp.StatusCode), "%s: %s %s: status %d: %s",
		c.opts.Name, r.method(), r.Path, resp.StatusCode, strings.TrimSpace(string(tail)))
}

func (c *Client) build(ctx context.Context, r Request) (*http.Request, error) {
	u := r.Path
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = c.opts.BaseURL + "/" + strings.TrimLeft(r.Path, "/")
	}
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + r.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "%s: encode request", c.opts.Name)
		}
		body, contentType = bytes.NewReader(b), "application/json"
	case r.Form != nil:
		body, contentType = strings.NewReader(r.Form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method(), u, body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "%s: build request", c.opts.Name)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, h := range []http.Header{c.opts.Header, r.Header} {
		for k, vv := range h {
			req.Header.Del(k)
			for _, v := range vv {
				req.Header.Add(k, v)
			}
		}
	}
	return req, nil
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// StatusCode maps an upstream HTTP status to an error code
func StatusCode(status int) perr.ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return perr.ErrorCodeTooManyRequests
	case status == http.StatusUnauthorized:
		return perr.ErrorCodeUnauthorized
	case status == http.StatusForbidden:
		return perr.ErrorCodeForbidden
	case status == http.StatusRequestTimeout:
		return perr.ErrorCodeUnavailable
	case status >= 500:
		return perr.ErrorCodeUnavailable
	case status >= 400:
		return perr.ErrorCodeInvalidArgument
	default:
		return perr.ErrorCodeUnknown
	}
}

package vrchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-grouppost/core/config"
)

const httpTimeout = 30 * time.Second

type Options struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func OptionsFromConfig(cfg config.VRChatConfig) Options {
	return Options{
		BaseURL:     cfg.BaseURL,
		UserAgent:   cfg.UserAgent,
		MinInterval: cfg.MinInterval,
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
	}
}

// WaitReason tells an observer why the client is about to sleep.
type WaitReason string

const (
	WaitThrottle WaitReason = "throttle"
	WaitBackoff  WaitReason = "backoff"
)

type WaitObserver func(reason WaitReason, d time.Duration)

type waitObserverKey struct{}

// WithWaitObserver attaches fn to ctx; the client calls it before every
// pacing or backoff wait of requests issued with that context.
func WithWaitObserver(ctx context.Context, fn WaitObserver) context.Context {
	return context.WithValue(ctx, waitObserverKey{}, fn)
}

func notifyWait(ctx context.Context, reason WaitReason, d time.Duration) {
	if fn, ok := ctx.Value(waitObserverKey{}).(WaitObserver); ok && fn != nil {
		fn(reason, d)
	}
}

// Client talks to the VRChat API. Requests are serialized, spaced by at
// least MinInterval, and retried with exponential backoff on 429 and 5xx.
type Client struct {
	opts    Options
	http    *http.Client
	clock   clockwork.Clock
	session *SessionStore

	sem         chan struct{}
	lastRequest time.Time

	wait func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func NewClient(opts Options, session *SessionStore, options ...Option) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 2 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	c := &Client{
		opts:    opts,
		http:    &http.Client{Timeout: httpTimeout},
		clock:   clockwork.NewRealClock(),
		session: session,
		sem:     make(chan struct{}, 1),
	}
	for _, o := range options {
		o(c)
	}
	c.wait = c.sleep
	return c
}

func (c *Client) Session() *SessionStore {
	return c.session
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// backoff returns BaseBackoff * 2^retry, capped at MaxBackoff.
func (c *Client) backoff(retry int) time.Duration {
	d := c.opts.BaseBackoff
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= c.opts.MaxBackoff {
			return c.opts.MaxBackoff
		}
	}
	if d > c.opts.MaxBackoff {
		return c.opts.MaxBackoff
	}
	return d
}

// pace blocks until MinInterval has passed since the previous request. The
// caller holds the semaphore.
func (c *Client) pace(ctx context.Context) error {
	if c.lastRequest.IsZero() || c.opts.MinInterval <= 0 {
		return nil
	}
	remaining := c.opts.MinInterval - c.clock.Since(c.lastRequest)
	if remaining <= 0 {
		return nil
	}
	notifyWait(ctx, WaitThrottle, remaining)
	return c.wait(ctx, remaining)
}

func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func humanDelay(d time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}

// do sends one logical request. It returns the first response that is not
// retryable, whatever its status, or a *RequestFailedError.
func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	attempts := c.opts.MaxRetries + 1
	failure := &RequestFailedError{Method: method, Path: path}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			logrus.Warnf("[VRCHAT] %s %s: retrying in %s (attempt %d/%d)", method, path, humanDelay(delay), attempt+1, attempts)
			notifyWait(ctx, WaitBackoff, delay)
			if err := c.wait(ctx, delay); err != nil {
				return nil, nil, err
			}
		}
		if err := c.pace(ctx); err != nil {
			return nil, nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("build %s %s: %w", method, path, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if cookie := c.session.Header(ctx); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		c.lastRequest = c.clock.Now()
		failure.Attempts = attempt + 1
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logrus.WithError(err).Warnf("[VRCHAT] %s %s transport error", method, path)
			failure.Err = err
			if !idempotent(method) {
				// The server may have acted on a request whose response was lost.
				break
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		_ = c.session.Merge(ctx, resp.Cookies())

		if retryable(resp.StatusCode) {
			logrus.Warnf("[VRCHAT] %s %s answered %d", method, path, resp.StatusCode)
			failure.LastStatus = resp.StatusCode
			failure.Err = nil
			continue
		}
		if readErr != nil {
			failure.Err = readErr
			continue
		}
		logrus.Debugf("[VRCHAT] %s %s -> %d", method, path, resp.StatusCode)
		return resp, data, nil
	}

	logrus.Errorf("[VRCHAT] %s", failure.Error())
	return nil, nil, failure
}

// call runs do and decodes a 2xx body into out. Other statuses become *APIError.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, data, err := c.do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Package apiclient is a small Go client for the cruise API. It keeps the
// session and CSRF binding cookies in a jar and attaches the CSRF header to
// every mutation, refreshing the token when the server rejects it.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	csrfHeader   = "X-CSRF-Token"
	csrfPath     = "/api/csrf-token"
	csrfCode     = "CSRF_INVALID"
	defaultStale = time.Hour
)

// ErrCSRF is returned when a mutation is rejected for CSRF twice in a row.
var ErrCSRF = errors.New("apiclient: csrf token rejected after refresh")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    map[string]any
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

type Option func(*Client)

// WithStaleAfter sets how old a cached token may get before a mutation
// fetches a new one.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Client) { c.staleAfter = d }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

type Client struct {
	http       *resty.Client
	group      singleflight.Group
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

func New(baseURL string, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetCookieJar(jar).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
		staleAfter: defaultStale,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Token returns a usable CSRF token, fetching one when none is cached or the
// cached one is stale. Concurrent callers share a single fetch.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok, at := c.token, c.fetchedAt
	c.mu.Unlock()
	if tok != "" && c.now().Sub(at) < c.staleAfter {
		return tok, nil
	}
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	v, err, _ := c.group.Do("csrf", func() (any, error) {
		var out struct {
			Token string `json:"csrfToken"`
		}
		resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get(csrfPath)
		if err != nil {
			return "", fmt.Errorf("fetch csrf token: %w", err)
		}
		if resp.IsError() {
			return "", decodeError(resp)
		}
		if out.Token == "" {
			return "", errors.New("fetch csrf token: empty token")
		}
		c.mu.Lock()
		c.token, c.fetchedAt = out.Token, c.now()
		c.mu.Unlock()
		return out.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate drops the cached token. Login, register and logout rotate the
// server-side binding, so the next mutation must fetch again.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.token, c.fetchedAt = "", time.Time{}
	c.mu.Unlock()
}

// Get issues a GET and decodes a 2xx body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return decodeInto(resp, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.mutate(ctx, http.MethodPost, path, body, out, nil)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.mutate(ctx, http.MethodPatch, path, body, out, nil)
}

// PostIdempotent sends key as the Idempotency-Key header so a retried call
// replays the first result.
func (c *Client) PostIdempotent(ctx context.Context, path, key string, body, out any) error {
	return c.mutate(ctx, http.MethodPost, path, body, out, map[string]string{"Idempotency-Key": key})
}

func (c *Client) mutate(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	tok, err := c.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, path, tok, body, headers)
	if err != nil {
		return err
	}
	if isCSRFRejection(resp) {
		c.invalidate()
		if tok, err = c.refresh(ctx); err != nil {
			return err
		}
		if resp, err = c.send(ctx, method, path, tok, body, headers); err != nil {
			return err
		}
		if isCSRFRejection(resp) {
			c.invalidate()
			return ErrCSRF
		}
	}
	return decodeInto(resp, out)
}

func (c *Client) send(ctx context.Context, method, path, tok string, body any, headers map[string]string) (*resty.Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers)
	if tok != "" {
		req.SetHeader(csrfHeader, tok)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func isCSRFRejection(resp *resty.Response) bool {
	if resp.StatusCode() != http.StatusForbidden {
		return false
	}
	var body struct {
		Code string `json:"code"`
	}
	return json.Unmarshal(resp.Body(), &body) == nil && body.Code == csrfCode
}

func decodeInto(resp *resty.Response, out any) error {
	if resp.IsError() {
		return decodeError(resp)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), &apiErr.Body); err == nil {
		apiErr.Message, _ = apiErr.Body["message"].(string)
		apiErr.Code, _ = apiErr.Body["code"].(string)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(apiErr.Status)
	}
	return apiErr
}

// Package client is the HTTP plumbing shared by everything that talks to
// a ServiceNow-family instance: the Table API passthrough, the executor's
// strategies, and the verifier's read path.
//
// A Client is bound to exactly one instance at construction. Components
// that operate "on instance X" build a fresh Client from the router's
// resolved Instance instead of rebinding a shared one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/instance"
)

// FailureClass categorizes an HTTP-level failure for the executor's
// fallthrough rules.
type FailureClass string

const (
	// ClassRetryable covers transient conditions: network errors,
	// timeouts, 408/429, and 5xx responses.
	ClassRetryable FailureClass = "retryable"
	// ClassPermission covers 401 and 403.
	ClassPermission FailureClass = "permission"
	// ClassNotFound covers 404.
	ClassNotFound FailureClass = "notFound"
	// ClassMalformed covers 400 and other shape rejections.
	ClassMalformed FailureClass = "malformed"
	// ClassFatal covers programming/configuration errors with no
	// runtime remedy.
	ClassFatal FailureClass = "fatal"
)

// Error is a classified remote-call failure. The raw response body is
// kept because malformed-class errors are surfaced verbatim to callers.
type Error struct {
	Class      FailureClass
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Class, e.StatusCode, truncate(e.Body, 200))
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf extracts the failure class from err, defaulting to retryable
// for unclassified transport errors.
func ClassOf(err error) FailureClass {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassRetryable
}

// classify maps an HTTP status code to a failure class.
func classify(status int) FailureClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassPermission
	case status == http.StatusNotFound:
		return ClassNotFound
	case status == http.StatusBadRequest:
		return ClassMalformed
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return ClassRetryable
	case status >= 500:
		return ClassRetryable
	default:
		return ClassMalformed
	}
}

// Client is an HTTP client bound to one instance.
type Client struct {
	inst   instance.Instance
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the transport timeout. Strategies with eventual
// semantics use a longer timeout than immediate-endpoint ones.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithCookieJar attaches a cookie jar so UI-style endpoints see the
// session cookies harvested during establishment.
func WithCookieJar(jar *cookiejar.Jar) Option {
	return func(c *Client) { c.http.Jar = jar }
}

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// defaultTimeout is the transport timeout for immediate-endpoint calls.
const defaultTimeout = 15 * time.Second

// New builds a Client bound to inst.
func New(inst instance.Instance, opts ...Option) *Client {
	c := &Client{
		inst:   inst,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Instance returns the instance this client is bound to.
func (c *Client) Instance() instance.Instance { return c.inst }

// BaseURL returns the bound instance's base URL.
func (c *Client) BaseURL() string { return c.inst.BaseURL }

// Get performs a GET against path (joined to the instance base URL) and
// decodes the JSON response into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON via POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch sends body as JSON via PATCH.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete performs a DELETE against path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// RawGet performs a GET and returns the raw body. Used by the session
// manager for the navigation-style establishment request, where the body
// is irrelevant and only cookies matter.
func (c *Client) RawGet(ctx context.Context, path string) (int, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &Error{Class: ClassRetryable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// PostForm sends a URL-encoded form POST and returns the raw response
// body. The UI script runner is a form-driven .do endpoint, not JSON.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.inst.BaseURL+path, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", &Error{Class: ClassFatal, Err: err}
	}
	req.SetBasicAuth(c.inst.Username, c.inst.Password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Class: ClassRetryable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Class: ClassRetryable, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{
			Class:      classify(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}
	return string(raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return &Error{Class: ClassRetryable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Class: ClassRetryable, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Class:      classify(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			Class:      ClassMalformed,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			Err:        fmt.Errorf("decoding response: %w", err),
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.inst.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Class: ClassFatal, Err: fmt.Errorf("encoding request body: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, &Error{Class: ClassFatal, Err: err}
	}
	req.SetBasicAuth(c.inst.Username, c.inst.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

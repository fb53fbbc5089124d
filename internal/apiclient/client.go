package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"sprint-academy/internal/flight"
	"sprint-academy/internal/logger"
)

const refreshPath = "/api/auth/refresh"

// Client talks to the learning backend on behalf of one visitor. It keeps
// the visitor's cookies and recovers from an expired session exactly once
// per request.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	log      *logger.Logger
	validate *validator.Validate
	jar      *recordingJar

	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. The client's jar is kept unless the
// given client has its own.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		jar := c.http.Jar
		c.http = h
		if c.http.Jar == nil {
			c.http.Jar = jar
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.With("service", "apiclient") }
}

// New creates a client for the backend at baseURL with an empty cookie jar.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	jar, err := newRecordingJar()
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := &Client{
		baseURL:  u,
		jar:      jar,
		http:     &http.Client{Jar: jar, Timeout: 30 * time.Second},
		log:      logger.Nop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Cookies returns the session cookies held for the backend with their
// attributes, ready to be persisted and handed back to SetCookies.
func (c *Client) Cookies() []*http.Cookie {
	if c.http.Jar == http.CookieJar(c.jar) {
		return c.jar.Snapshot()
	}
	return c.http.Jar.Cookies(c.baseURL)
}

// SetCookies seeds the jar, e.g. from a persisted visitor session.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.http.Jar.SetCookies(c.baseURL, cookies)
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
	// NoRetry disables the refresh-and-retry on 401.
	NoRetry bool
}

// Response is the raw backend answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsJSON reports whether the response declares a JSON body.
func (r *Response) IsJSON() bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Do sends a credentialed request and returns the raw response without
// judging its status. A 401 triggers one refresh and one retry unless
// NoRetry is set; if the refresh fails the original 401 is returned.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", req.Method, req.Path, err)
		}
		payload = b
	}
	return c.do(ctx, req, payload)
}

func (c *Client) do(ctx context.Context, req Request, payload []byte) (*Response, error) {
	resp, err := c.send(ctx, req, payload)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized || req.NoRetry {
		return resp, nil
	}
	if err := c.refresh(ctx); err != nil {
		c.log.Debug("session refresh failed", "path", req.Path, "error", err)
		return resp, nil
	}
	req.NoRetry = true
	return c.do(ctx, req, payload)
}

// refresh collapses concurrent refreshes of the same visitor into one call.
func (c *Client) refresh(ctx context.Context) error {
	_, err := flight.Do(ctx, &c.refreshes, refreshPath, c.http.Timeout, func(ctx context.Context) (struct{}, error) {
		resp, err := c.send(ctx, Request{Method: http.MethodPost, Path: refreshPath, NoRetry: true}, nil)
		if err != nil {
			return struct{}{}, err
		}
		if !resp.OK() {
			return struct{}{}, newAPIError(resp)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) (*Response, error) {
	u := c.resolve(req.Path, req.Query)
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, req.Path, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.Path, err)
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, req.Path, err)
	}
	c.log.Debug("backend call", "method", method, "path", req.Path, "status", httpResp.StatusCode, "took", time.Since(start))
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: raw}, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	p, rawQuery, _ := strings.Cut(path, "?")
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(p, "/")
	q, _ := url.ParseQuery(rawQuery)
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Send performs the request and negotiates the body: 204 yields nil, JSON
// yields the decoded value, anything else the raw text or nil when empty.
// Non-2xx answers become *APIError.
func (c *Client) Send(ctx context.Context, req Request) (any, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, newAPIError(resp)
	}
	return negotiate(resp)
}

// Call performs the request and decodes a JSON answer into out. out may be
// nil when the caller does not need the body.
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return newAPIError(resp)
	}
	if out == nil || resp.Status == http.StatusNoContent || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if !resp.IsJSON() {
		if s, ok := out.(*string); ok {
			*s = string(resp.Body)
			return nil
		}
		return fmt.Errorf("%s %s: expected JSON, got %q", req.Method, req.Path, resp.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

func negotiate(resp *Response) (any, error) {
	if resp.Status == http.StatusNoContent {
		return nil, nil
	}
	if resp.IsJSON() {
		if len(bytes.TrimSpace(resp.Body)) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(resp.Body, &v); err != nil {
			return nil, fmt.Errorf("decode json body: %w", err)
		}
		return v, nil
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}
	return string(resp.Body), nil
}

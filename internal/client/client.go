// Package client is the typed HTTP client for the rewards backend.
//
// Every authenticated call attaches the current session credential as a
// bearer token; a 401 invalidates that credential. Calls are never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/IVANFROL/reklama-oleg/internal/apierr"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultMaxUploadBytes = 50 << 20

	// RequestIDHeader carries a per-request id for correlating logs.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody    = 64 << 10
	maxResponseBody = 8 << 20
)

// Credentials is the session as the client sees it.
type Credentials interface {
	Credential() (string, bool)
	Invalidate(credential string)
}

type Client struct {
	base           *url.URL
	http           *http.Client
	creds          Credentials
	logger         *slog.Logger
	maxUploadBytes int64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxUploadBytes sets the size above which Upload refuses a file locally.
func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) { c.maxUploadBytes = n }
}

// New returns a client for the backend at baseURL. creds may be nil for a
// client that only performs unauthenticated calls.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be an absolute http(s) url", baseURL)
	}
	c := &Client{
		base:           u,
		http:           &http.Client{Timeout: DefaultTimeout},
		creds:          creds,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// BaseURL is the backend root the client talks to.
func (c *Client) BaseURL() string { return c.base.String() }

// Resolve turns a server-relative path such as /uploads/x.png into an absolute URL.
func (c *Client) Resolve(ref string) string {
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	return c.base.ResolveReference(r).String()
}

// call describes one request.
type call struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool       // attach the session credential
	token       string     // explicit credential, overrides the session
	hint        apierr.Kind // kind for a bare 400
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// do sends the call and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, in call, out any) error {
	token := in.token
	fromSession := false
	if token == "" && in.auth {
		var ok bool
		if c.creds != nil {
			token, ok = c.creds.Credential()
		}
		if !ok {
			return apierr.New(in.op, apierr.KindUnauthenticated, "")
		}
		fromSession = true
	}

	req, err := http.NewRequestWithContext(ctx, in.method, c.base.String()+in.path, in.body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", in.op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if in.contentType != "" {
		req.Header.Set("Content-Type", in.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "op", in.op, "request_id", reqID, "error", err)
		return apierr.Network(in.op, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("request",
		"op", in.op,
		"method", in.method,
		"path", in.path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := apierr.Decode(in.op, resp.StatusCode, body, in.hint)
		if e.Kind == apierr.KindUnauthenticated && fromSession {
			c.creds.Invalidate(token)
		}
		return e
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return apierr.Network(in.op, err)
		}
		return &apierr.Error{Kind: apierr.KindUnexpected, Op: in.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Package api is the HTTP plumbing shared by the clients of the reader's
// web service: chapter content, verse audio and playlists.
package api

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

	"golang.org/x/time/rate"
)

// DefaultRequestsPerMinute paces calls to the service when no limit is set.
const DefaultRequestsPerMinute = 120

// ErrNoBaseURL is returned when a client is built without a service URL.
var ErrNoBaseURL = errors.New("service URL is not configured")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("service returned %d: %s", e.Status, e.Message)
}

// Config holds the connection settings for the service.
type Config struct {
	BaseURL           string
	Token             string
	RequestsPerMinute int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client sends JSON requests to the service.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%s is not a supported protocol", base.Scheme)
	}

	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		base:    base,
		token:   cfg.Token,
		http:    hc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}, nil
}

// BaseURL returns the service URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Resolve turns a possibly relative reference into an absolute URL on the
// service.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

// DoJSON sends in (when non-nil) as a JSON body to path and decodes the
// response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	target, err := c.Resolve(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Do waits for the rate limiter, adds the service headers and sends req.
// The caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	// audio references may point at blob storage; credentials stay home
	if req.URL.Host == c.base.Host {
		// the service rejects cross-origin writes
		req.Header.Set("Origin", c.base.Scheme+"://"+c.base.Host)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// errorBody is the error shape used by every service route.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeStatusError(resp *http.Response) error {
	var eb errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &eb); err != nil {
		return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	msg := eb.Error
	if msg == "" {
		msg = eb.Message
	}
	return &StatusError{Status: resp.StatusCode, Message: msg}
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Package gateway is the HTTP transport shared by every remote collaborator:
// the campaign backend, the chat-line session gateway and the chat platform
// API. Failures come back as *apperr.TransportError and are never retried.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/apperr"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Defaults for Options.
const (
	DefaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
	maxErrorText   = 300
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string             // static bearer token; ignored when TokenSource is set
	TokenSource oauth2.TokenSource // e.g. a refreshing platform credential
	Timeout     time.Duration      // defaults to DefaultTimeout
	RatePerSec  float64            // <= 0 means unlimited
	Burst       int                // defaults to 1
	HTTPClient  *http.Client       // base client; its Transport is reused
	Logger      zerolog.Logger
}

// Client issues JSON, multipart and raw requests against one base URL.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}

	ts := opts.TokenSource
	if ts == nil && opts.Token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
	}
	hc := &http.Client{Transport: base.Transport, Timeout: timeout}
	if ts != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		hc = oauth2.NewClient(ctx, ts)
		hc.Timeout = timeout
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
		log:     opts.Logger.With().Str("component", "gateway").Logger(),
	}, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// GetJSON issues GET path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return decode(http.MethodGet, path, body, out)
}

// PostJSON issues POST path with in encoded as JSON and decodes the response
// into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("gateway: encode %s: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	return decode(http.MethodPost, path, body, out)
}

// PostMultipart builds a multipart body with build and POSTs it to path.
func (c *Client) PostMultipart(ctx context.Context, path string, build func(*multipart.Writer) error, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := build(mw); err != nil {
		return fmt.Errorf("gateway: build multipart %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("gateway: close multipart %s: %w", path, err)
	}
	body, err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	return decode(http.MethodPost, path, body, out)
}

// GetRaw issues GET path and returns the body unparsed.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

// resolve joins path onto the base URL unless it is already absolute.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base + path
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	op := method + " " + path
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &apperr.TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request %s: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Str("op", op).Str("request_id", reqID).Err(err).Msg("request failed")
		return nil, &apperr.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperr.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	c.log.Debug().
		Str("op", op).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperr.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}
	return respBody, nil
}

func decode(method, path string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apperr.TransportError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorMessage extracts a human-readable reason from an error response body.
func errorMessage(body []byte) string {
	var env struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return text
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is where the backend listens in local development.
	DefaultBaseURL = "http://localhost:8780"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps JSON response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBody is how much of a failed response body is kept.
	maxErrorBody = 4 * 1024

	// Session list limits enforced by the server.
	DefaultSessionLimit = 20
	MaxSessionLimit     = 100

	userAgent = "rosemary/0.1"
)

// Paths are the endpoint paths relative to the base URL.
type Paths struct {
	Chat      string
	Interrupt string
	Upload    string
	Sessions  string
}

// DefaultPaths returns the backend's standard routes.
func DefaultPaths() Paths {
	return Paths{
		Chat:      "/api/chat",
		Interrupt: "/api/chat/interrupt",
		Upload:    "/api/upload",
		Sessions:  "/api/sessions",
	}
}

// Error variables for common API failures.
var (
	// ErrNoBody indicates a successful status with an empty stream body.
	ErrNoBody = errors.New("response has no body")

	// ErrBadRequest matches 400 responses.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrTooLarge matches 413 responses.
	ErrTooLarge = errors.New("payload too large")

	// ErrServer matches 5xx responses.
	ErrServer = errors.New("server error")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Detail extracts a human-readable reason from the body. FastAPI style
// {"detail": "..."} bodies are unwrapped.
func (e *StatusError) Detail() string {
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(body.Detail)
		return string(b)
	}
	return strings.TrimSpace(e.Body)
}

// Is maps status codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrTooLarge:
		return e.Status == http.StatusRequestEntityTooLarge
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the backend. The base URL may be swapped at runtime with
// SetBaseURL; requests already in flight are unaffected.
type Client struct {
	mu      sync.RWMutex
	baseURL string

	paths        Paths
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// New creates a client for baseURL. An empty baseURL selects DefaultBaseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		paths:        DefaultPaths(),
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
		logger:       slog.Default(),
	}
}

// WithPaths overrides endpoint paths. Empty fields keep their defaults.
func (c *Client) WithPaths(p Paths) *Client {
	if p.Chat != "" {
		c.paths.Chat = p.Chat
	}
	if p.Interrupt != "" {
		c.paths.Interrupt = p.Interrupt
	}
	if p.Upload != "" {
		c.paths.Upload = p.Upload
	}
	if p.Sessions != "" {
		c.paths.Sessions = p.Sessions
	}
	return c
}

// WithTimeout sets the timeout for non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithTransport sets the round tripper used by both underlying clients.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.httpClient.Transport = rt
	c.streamClient.Transport = rt
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL swaps the base URL for subsequent requests.
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Chat opens a chat turn and returns the event stream body. The caller owns
// the body. Cancelling ctx aborts the read.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.paths.Chat, nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(c.streamClient, httpReq)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0 {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

// Interrupt asks the backend to stop generating.
func (c *Client) Interrupt(ctx context.Context) (InterruptResult, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.paths.Interrupt, nil, nil)
	if err != nil {
		return InterruptResult{}, err
	}

	var out InterruptResult
	if err := c.doJSON(httpReq, &out); err != nil {
		return InterruptResult{}, err
	}
	return out, nil
}

// Upload sends a file as multipart form data in the "file" field.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.paths.Upload, nil, &buf)
	if err != nil {
		return UploadResult{}, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	if err := c.doJSON(httpReq, &out); err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

// ListSessions returns the most recently updated sessions. limit is clamped
// to 1..MaxSessionLimit; zero or less selects DefaultSessionLimit.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	switch {
	case limit <= 0:
		limit = DefaultSessionLimit
	case limit > MaxSessionLimit:
		limit = MaxSessionLimit
	}

	q := url.Values{"limit": {strconv.Itoa(limit)}}
	httpReq, err := c.newRequest(ctx, http.MethodGet, c.paths.Sessions, q, nil)
	if err != nil {
		return nil, err
	}

	var out []SessionSummary
	if err := c.doJSON(httpReq, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Title == "" {
			out[i].Title = shortID(out[i].ID)
		}
	}
	return out, nil
}

// GetSession fetches one session's history.
func (c *Client) GetSession(ctx context.Context, id string) (SessionHistory, error) {
	if id == "" {
		return SessionHistory{}, fmt.Errorf("get session: %w", ErrNotFound)
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, c.paths.Sessions+"/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return SessionHistory{}, err
	}

	var out SessionHistory
	if err := c.doJSON(httpReq, &out); err != nil {
		return SessionHistory{}, err
	}
	if out.SessionID == "" {
		out.SessionID = id
	}
	return out, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.BaseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// do sends the request and converts non-2xx responses into *StatusError.
// On error the body is already closed.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	c.logger.Debug("api response",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

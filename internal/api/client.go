// Package api is the REST client for the monitoring backend.
//
// Every request goes to <api base>/api/v1, carries JSON, and is authorised
// with "Authorization: Token <token>" when a token is present in durable
// storage. The token is read from storage on every request rather than held
// in the client, so a login or logout elsewhere in the process takes effect
// immediately without the client knowing about the session store.
//
// Non-2xx responses become [*Error] values whose Detail is always set, even
// when the server returns a JSON-encoded string or a non-JSON body. A 401
// additionally deletes the stored token and invokes the unauthorized hook.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/pulsedeck/internal/storage"
)

const (
	apiPrefix = "/api/v1"

	// maxResponseBodySize bounds how much of a response is read.
	maxResponseBodySize = 10 << 20

	defaultTimeout = 30 * time.Second

	loginPath = "/auth/login/"
)

// connection pooling limits, matching a single backend host
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Client talks to the backend REST API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	storage        storage.Storage
	onUnauthorized func()
	logger         *slog.Logger
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUnauthorizedHandler registers fn to run after any 401 response except
// one to the login endpoint. It is the hook a front end uses to send the
// user back to its login screen.
func WithUnauthorizedHandler(fn func()) ClientOption {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the backend at apiBase (scheme and host,
// e.g. "http://localhost:8000"). st supplies the auth token.
func NewClient(apiBase string, st storage.Storage, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(apiBase, "/") + apiPrefix,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		storage: st,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the resolved base URL including the /api/v1 prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close releases idle connections.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// do performs one request. body (if non-nil) is sent as JSON; target (if
// non-nil) receives the decoded 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	token, err := storage.GetOptional(c.storage, storage.KeyAuthToken)
	if err != nil {
		c.logger.Warn("failed to read auth token", "error", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newError(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized {
			c.handleUnauthorized(path)
		}
		return apiErr
	}

	if target == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := decodeBody(raw, target); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// handleUnauthorized drops the stored credential and, unless the failing
// call was the login itself, notifies the front end.
func (c *Client) handleUnauthorized(path string) {
	if err := c.storage.Delete(storage.KeyAuthToken); err != nil {
		c.logger.Warn("failed to clear auth token after 401", "error", err)
	}
	if path == loginPath {
		return
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// decodeBody decodes raw into target, accepting a body that is itself a
// JSON-encoded string of the document.
func decodeBody(raw []byte, target any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err == nil {
			trimmed = []byte(inner)
		}
	}
	return json.Unmarshal(trimmed, target)
}

// decodeList decodes either a paginated {"results": [...]} envelope or a
// bare list.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results []T `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, err
		}
		return page.Results, nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Package api implements the REST client for the pathology billing
// backend. The backend owns all substantive computation (AI inference,
// PDF rendering, persistence); this client is a thin, typed surface over
// its JSON API. Calls are never retried automatically: a failed action
// is reported once and the operator re-triggers it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyDocument is returned when an export download completes with a
// zero-byte body. The backend occasionally serves an empty file when PDF
// generation failed upstream of the HTTP layer.
var ErrEmptyDocument = errors.New("exported document is empty")

// Error represents a non-2xx response from the backend. Detail carries
// the message from the JSON {"detail": "..."} error body when present.
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Config holds client construction parameters. BaseURL is injected from
// configuration at startup; it is never a package-level constant.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client handles communication with the pathology billing backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a backend API client.
func NewClient(config Config, logger *log.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL returns the configured backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// makeRequest performs one HTTP request against the backend. There is no
// retry loop here on purpose: every failure surfaces to the caller so
// the operator stays in control of re-triggering actions.
func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "patho-console/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

// checkResponse converts a non-2xx response into an *Error, extracting
// the detail message from the JSON error body when one is present. It
// consumes and closes the body on error.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	apiErr := &Error{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(raw) > 0 {
		var body struct {
			Detail string `json:"detail"`
		}
		if jsonErr := json.Unmarshal(raw, &body); jsonErr == nil && body.Detail != "" {
			apiErr.Detail = body.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(raw))
		}
	}
	return apiErr
}

// decodeResponse checks the status and decodes a JSON body into out.
func (c *Client) decodeResponse(resp *http.Response, out interface{}) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ResolveImageURL normalizes the image reference forms the backend
// emits: absolute URLs pass through, root-relative paths are joined to
// the base URL, and bare relative paths get a separating slash.
func (c *Client) ResolveImageURL(raw string) string {
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "/"):
		return c.baseURL + raw
	default:
		return c.baseURL + "/" + raw
	}
}

// Health probes the backend by listing cases. Used at startup and by
// the status bar to distinguish live data from the cached snapshot.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/api/cases", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

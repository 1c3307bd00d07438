// Package remote talks to the public catalog API. Every call is a single
// attempt; retries and caching belong to callers.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Error is returned when the API answers with a non-2xx status
type Error struct {
	Status int
	Path   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote request %s failed: HTTP %d", e.Path, e.Status)
}

// Client fetches resources relative to a fixed base URL
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL (e.g. https://flathub.org/api/v2).
// A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the configured base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs one GET request for path and returns the raw body
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.GetURL(ctx, c.baseURL+path)
}

// GetURL is Get for an absolute URL, used for assets (icons) that live
// outside the API base
func (c *Client) GetURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &Error{Status: resp.StatusCode, Path: strings.TrimPrefix(url, c.baseURL)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// GetJSON fetches path and decodes the JSON body into v
func (c *Client) GetJSON(ctx context.Context, path string, v interface{}) error {
	body, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

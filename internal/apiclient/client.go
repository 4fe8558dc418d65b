// Package apiclient talks to the despesas document store over HTTP.
package apiclient

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

	"despesas/internal/core"
	"despesas/internal/storage"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 4 << 20
	userAgent      = "despesas-cli/1.0"
)

// ErrRateLimited indicates the server refused a write for now.
var ErrRateLimited = errors.New("apiclient: rate limited")

// StatusError is a non-2xx answer the client has no sentinel for.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("apiclient: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("apiclient: status %d: %s", e.Code, e.Message)
}

// Client implements gateway.Store against the HTTP API.
type Client struct {
	base    *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at serverURL.
func New(serverURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: unsupported scheme %q", u.Scheme)
	}
	c := &Client{base: u, timeout: defaultTimeout, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List fetches the whole collection, newest date first.
func (c *Client) List(ctx context.Context) ([]core.Expense, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/expenses", nil)
	if err != nil {
		return nil, err
	}
	var records []core.Expense
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("apiclient: parsing expenses: %w", err)
	}
	return records, nil
}

// AddRecord stores a new record and returns the id the server assigned.
func (c *Client) AddRecord(ctx context.Context, rec core.NewExpense) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/expenses", rec)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("apiclient: parsing created id: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("apiclient: server returned no id")
	}
	return created.ID, nil
}

func (c *Client) PatchRecord(ctx context.Context, id string, p core.Patch) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/expenses/"+url.PathEscape(id), p)
	return err
}

func (c *Client) RemoveRecord(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/expenses/"+url.PathEscape(id), nil)
	return err
}

// do performs an authenticated request and returns the response body.
// Forbidden and not-found answers are mapped onto the storage sentinels.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("apiclient: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("apiclient: reading response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, storage.ErrPermission)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, storage.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	}
	return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(body)}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

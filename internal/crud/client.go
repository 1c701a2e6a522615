package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher is the read side of the API the grid depends on.
// It is implemented by *Client and can be replaced in tests.
type Fetcher interface {
	List(ctx context.Context, rawURL string) (Page, error)
	FetchDetail(ctx context.Context, resource, id string) (Record, error)
	FetchSchema(ctx context.Context, resource string) (Schema, error)
	FetchTabs(ctx context.Context, resource string) ([]Tab, error)
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// Client talks to the CRUD HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	headers   http.Header
	prefsPath string
	details   singleflight.Group
}

const (
	defaultBaseURL   = "http://127.0.0.1:8080/api"
	defaultUserAgent = "gridder/0.1"
	defaultPrefsPath = "/preferences"
	requestTimeout   = 10 * time.Second
	maxErrorBody     = 64 * 1024
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a header to every request (e.g. Authorization).
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" && strings.TrimSpace(value) != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithPreferencesPath sets the preferences endpoint path relative to the base URL.
func WithPreferencesPath(p string) Option {
	return func(c *Client) {
		if strings.TrimSpace(p) != "" {
			c.prefsPath = p
		}
	}
}

// NewClient builds a Client rooted at baseURL (scheme optional).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
		headers:   http.Header{},
		prefsPath: defaultPrefsPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Headers returns a copy of the headers sent with every request.
func (c *Client) Headers() http.Header {
	return c.headers.Clone()
}

// List fetches one page from an absolute list URL and normalizes it.
func (c *Client) List(ctx context.Context, rawURL string) (Page, error) {
	if c == nil {
		return Page{}, fmt.Errorf("client is nil")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse list url: %w", err)
	}
	if !u.IsAbs() {
		u = c.resolve(u)
	}
	body, _, err := c.send(ctx, http.MethodGet, u, nil, "list request failed")
	if err != nil {
		return Page{}, err
	}
	return NormalizePage(body)
}

// FetchDetail retrieves a single record. Concurrent calls for the same id share
// one request; each caller stops waiting when its own ctx is done, and the
// shared request is bounded by the client timeout only.
func (c *Client) FetchDetail(ctx context.Context, resource, id string) (Record, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("record id required")
	}
	shared := context.WithoutCancel(ctx)
	ch := c.details.DoChan(resource+"/"+id, func() (any, error) {
		var rec Record
		err := c.doJSON(shared, http.MethodGet, path.Join("/", resource, id), nil, &rec, "detail request failed")
		return rec, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rec, _ := res.Val.(Record)
		return rec, nil
	}
}

// FetchSchema retrieves the field description of a resource.
func (c *Client) FetchSchema(ctx context.Context, resource string) (Schema, error) {
	if c == nil {
		return Schema{}, fmt.Errorf("client is nil")
	}
	var schema Schema
	if err := c.doJSON(ctx, http.MethodGet, path.Join("/", resource, "schema"), nil, &schema, "schema request failed"); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

// FetchTabs retrieves the edit-panel tab layout of a resource.
func (c *Client) FetchTabs(ctx context.Context, resource string) ([]Tab, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var tabs []Tab
	if err := c.doJSON(ctx, http.MethodGet, path.Join("/", resource, "tabs"), nil, &tabs, "tabs request failed"); err != nil {
		return nil, err
	}
	return tabs, nil
}

// SubmitExport posts an export request. Synchronous deliveries return the
// file inline; asynchronous ones return a job handle.
func (c *Client) SubmitExport(ctx context.Context, resource string, req ExportRequest) (ExportResult, error) {
	if c == nil {
		return ExportResult{}, fmt.Errorf("client is nil")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode export request: %w", err)
	}
	u := c.resolve(&url.URL{Path: path.Join("/", resource, "export")})
	body, header, err := c.send(ctx, http.MethodPost, u, payload, "export failed")
	if err != nil {
		return ExportResult{}, err
	}

	ctype := header.Get("Content-Type")
	if strings.HasPrefix(ctype, "application/json") && req.Delivery != "sync" {
		var job ExportJob
		if err := json.Unmarshal(body, &job); err == nil && job.ID != "" {
			return ExportResult{Job: &job}, nil
		}
	}
	return ExportResult{
		Filename:    attachmentName(header.Get("Content-Disposition"), resource, req.Format),
		ContentType: ctype,
		Body:        body,
	}, nil
}

// ExportStatus polls an asynchronous export job.
func (c *Client) ExportStatus(ctx context.Context, jobID string) (ExportJob, error) {
	if c == nil {
		return ExportJob{}, fmt.Errorf("client is nil")
	}
	var job ExportJob
	if err := c.doJSON(ctx, http.MethodGet, path.Join("/exports", jobID), nil, &job, "export status failed"); err != nil {
		return ExportJob{}, err
	}
	return job, nil
}

// Download fetches a finished export file.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse download url: %w", err)
	}
	if !u.IsAbs() {
		u = c.resolve(u)
	}
	body, _, err := c.send(ctx, http.MethodGet, u, nil, "download failed")
	return body, err
}

// BulkAction runs a named action over ids.
func (c *Client) BulkAction(ctx context.Context, resource, action string, ids []string) (BulkResult, error) {
	if c == nil {
		return BulkResult{}, fmt.Errorf("client is nil")
	}
	var result BulkResult
	p := path.Join("/", resource, "bulk", action)
	if err := c.doJSON(ctx, http.MethodPost, p, BulkRequest{IDs: ids}, &result, "bulk action failed"); err != nil {
		return BulkResult{}, err
	}
	return result, nil
}

// LoadPreference reads a stored preference payload. A 404 yields (nil, nil).
func (c *Client) LoadPreference(ctx context.Context, resource, key string) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var raw json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, c.preferencePath(resource, key), nil, &raw, "load preferences failed")
	if StatusCode(err) == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// SavePreference writes a preference payload.
func (c *Client) SavePreference(ctx context.Context, resource, key string, payload json.RawMessage) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.doJSON(ctx, http.MethodPut, c.preferencePath(resource, key), payload, nil, "save preferences failed")
}

// DeletePreference removes a preference payload.
func (c *Client) DeletePreference(ctx context.Context, resource, key string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	err := c.doJSON(ctx, http.MethodDelete, c.preferencePath(resource, key), nil, nil, "delete preferences failed")
	if StatusCode(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) preferencePath(resource, key string) string {
	return path.Join("/", c.prefsPath, resource, key)
}

func (c *Client) doJSON(ctx context.Context, method, p string, in, dest any, fallback string) error {
	var payload []byte
	if in != nil {
		if raw, ok := in.(json.RawMessage); ok {
			payload = raw
		} else {
			encoded, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			payload = encoded
		}
	}
	body, _, err := c.send(ctx, method, c.resolve(&url.URL{Path: p}), payload, fallback)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, payload []byte, fallback string) ([]byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.Header, &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(body, fallback, resp.StatusCode),
			Path:    u.Path,
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("read response: %w", err)
	}
	return body, resp.Header, nil
}

func (c *Client) resolve(rel *url.URL) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return &u
}

func attachmentName(disposition, resource, format string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	if format == "" {
		format = "csv"
	}
	return fmt.Sprintf("%s.%s", resource, format)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base %q: %w", raw, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

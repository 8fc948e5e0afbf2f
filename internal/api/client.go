package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// TokenSource supplies the bearer credential for each request. An empty
// token means the request is sent without Authorization.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, error)

// Token calls f.
func (f TokenFunc) Token() (string, error) { return f() }

// Client talks to the guidedesk HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenSource
	timeout   time.Duration
	now       func() time.Time
	lastBust  atomic.Int64
}

const (
	defaultAPIURL    = "http://127.0.0.1:8080"
	defaultUserAgent = "guidedesk/0.1"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 10 * time.Second
	// CacheBustParam is appended to every request URL.
	CacheBustParam = "_t"
	maxErrorBody   = 64 * 1024
)

// Option customizes a Client.
type Option func(*Client)

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithTimeout bounds each request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock overrides the time source used for cache busting.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Client for apiURL (host:port or full URL).
func NewClient(apiURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL.String()
}

// Health checks that the API is reachable. It needs no token.
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil, nil)
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	if c == nil {
		return LoginResponse{}, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(username) == "" {
		return LoginResponse{}, &ValidationError{Field: "username", Message: "is required"}
	}
	if password == "" {
		return LoginResponse{}, &ValidationError{Field: "password", Message: "is required"}
	}
	body := map[string]string{"username": strings.TrimSpace(username), "password": password}
	var payload LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &payload); err != nil {
		return LoginResponse{}, err
	}
	return payload, nil
}

// ListGuides fetches a page of guides.
func (c *Client) ListGuides(ctx context.Context, query PageQuery) (GuidePage, error) {
	if c == nil {
		return GuidePage{}, fmt.Errorf("client is nil")
	}
	raw, err := c.doRaw(ctx, http.MethodGet, "/api/guides", query.values(), nil)
	if err != nil {
		return GuidePage{}, err
	}
	return DecodePage[Guide](raw)
}

// CreateGuide adds a guide.
func (c *Client) CreateGuide(ctx context.Context, guide NewGuide) (Guide, error) {
	if c == nil {
		return Guide{}, fmt.Errorf("client is nil")
	}
	if err := guide.Validate(); err != nil {
		return Guide{}, err
	}
	var created Guide
	if err := c.do(ctx, http.MethodPost, "/api/guides", nil, guide, &created); err != nil {
		return Guide{}, err
	}
	return created, nil
}

// DeleteGuide removes a guide.
func (c *Client) DeleteGuide(ctx context.Context, id int64) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if id <= 0 {
		return &ValidationError{Field: "id", Message: "must be positive"}
	}
	var payload MessageResponse
	return c.do(ctx, http.MethodDelete, "/api/guides/"+strconv.FormatInt(id, 10), nil, nil, &payload)
}

// ListTours fetches a page of tours.
func (c *Client) ListTours(ctx context.Context, query PageQuery) (TourPage, error) {
	if c == nil {
		return TourPage{}, fmt.Errorf("client is nil")
	}
	raw, err := c.doRaw(ctx, http.MethodGet, "/api/tours", query.values(), nil)
	if err != nil {
		return TourPage{}, err
	}
	return DecodePage[Tour](raw)
}

// CreateTour schedules a tour.
func (c *Client) CreateTour(ctx context.Context, tour NewTour) (Tour, error) {
	if c == nil {
		return Tour{}, fmt.Errorf("client is nil")
	}
	if err := tour.Validate(); err != nil {
		return Tour{}, err
	}
	var created Tour
	if err := c.do(ctx, http.MethodPost, "/api/tours", nil, tour, &created); err != nil {
		return Tour{}, err
	}
	return created, nil
}

// UpdateTour applies a partial update.
func (c *Client) UpdateTour(ctx context.Context, id int64, patch TourPatch) (Tour, error) {
	if c == nil {
		return Tour{}, fmt.Errorf("client is nil")
	}
	if patch.Empty() {
		return Tour{}, &ValidationError{Field: "patch", Message: "no fields to update"}
	}
	var updated Tour
	if err := c.do(ctx, http.MethodPut, tourPath(id, ""), nil, patch, &updated); err != nil {
		return Tour{}, err
	}
	return updated, nil
}

// SetTourPaid sets the paid flag.
func (c *Client) SetTourPaid(ctx context.Context, id int64, paid bool) (Tour, error) {
	if c == nil {
		return Tour{}, fmt.Errorf("client is nil")
	}
	var updated Tour
	if err := c.do(ctx, http.MethodPut, tourPath(id, "paid"), nil, map[string]bool{"paid": paid}, &updated); err != nil {
		return Tour{}, err
	}
	return updated, nil
}

// SetTourCancelled sets the cancelled flag.
func (c *Client) SetTourCancelled(ctx context.Context, id int64, cancelled bool) (Tour, error) {
	if c == nil {
		return Tour{}, fmt.Errorf("client is nil")
	}
	var updated Tour
	if err := c.do(ctx, http.MethodPut, tourPath(id, "cancelled"), nil, map[string]bool{"cancelled": cancelled}, &updated); err != nil {
		return Tour{}, err
	}
	return updated, nil
}

// DeleteTour removes a tour.
func (c *Client) DeleteTour(ctx context.Context, id int64) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	var payload MessageResponse
	return c.do(ctx, http.MethodDelete, tourPath(id, ""), nil, nil, &payload)
}

// SyncEnabled queries whether the server allows Bokun syncs.
func (c *Client) SyncEnabled(ctx context.Context) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	values.Set("action", "config")
	var payload SyncEnabledResponse
	if err := c.do(ctx, http.MethodGet, "/api/bokun_sync", values, nil, &payload); err != nil {
		return false, err
	}
	return payload.SyncEnabled, nil
}

// SetSyncEnabled toggles the server side sync switch.
func (c *Client) SetSyncEnabled(ctx context.Context, enabled bool) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	values := url.Values{}
	values.Set("action", "config")
	return c.do(ctx, http.MethodPut, "/api/bokun_sync", values, SyncEnabledResponse{SyncEnabled: enabled}, nil)
}

// RunSync asks the server to import bookings from Bokun. trigger is recorded
// by the server for auditing; "manual" is sent as type=manual, anything
// else as type=auto.
func (c *Client) RunSync(ctx context.Context, trigger string) (SyncResult, error) {
	if c == nil {
		return SyncResult{}, fmt.Errorf("client is nil")
	}
	syncType := "auto"
	if trigger == "manual" {
		syncType = "manual"
	}
	values := url.Values{}
	values.Set("action", "sync")
	values.Set("type", syncType)
	values.Set("triggered_by", trigger)
	var payload SyncResult
	if err := c.do(ctx, http.MethodGet, "/api/bokun_sync", values, nil, &payload); err != nil {
		return SyncResult{}, err
	}
	return payload, nil
}

func tourPath(id int64, suffix string) string {
	path := "/api/tours/" + strconv.FormatInt(id, 10)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

func (q PageQuery) values() url.Values {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return values
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	raw, err := c.doRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set(CacheBustParam, strconv.FormatInt(c.cacheBuster(), 10))
	rel := &url.URL{Path: path, RawQuery: query.Encode()}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ServerError{Status: resp.StatusCode, Body: string(data)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	return data, nil
}

// cacheBuster returns a strictly increasing value derived from the clock.
func (c *Client) cacheBuster() int64 {
	next := c.now().UnixNano()
	for {
		last := c.lastBust.Load()
		if next <= last {
			next = last + 1
		}
		if c.lastBust.CompareAndSwap(last, next) {
			return next
		}
	}
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", apiURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

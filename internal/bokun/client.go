package bokun

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// DefaultBaseURL is the production Bokun API.
const DefaultBaseURL = "https://api.bokun.io"

const (
	searchPath   = "/booking.json/booking-search"
	dateLayout   = "2006-01-02 15:04:05"
	pageSize     = 50
	maxPages     = 40
	maxErrorBody = 4096
)

// ErrNotConfigured is returned when no API keys are set.
var ErrNotConfigured = errors.New("bokun credentials not configured")

// APIError reports a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("bokun returned status %d", e.Status)
	}
	return fmt.Sprintf("bokun returned status %d: %s", e.Status, body)
}

// temporary reports whether retrying may help.
func (e *APIError) temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Config holds the API credentials.
type Config struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
	// Location is used to turn booking start times into local dates.
	Location *time.Location
	// MaxTries bounds attempts per request, including the first.
	MaxTries uint
}

// Client talks to the Bokun API.
type Client struct {
	baseURL  *url.URL
	access   string
	secret   string
	http     *http.Client
	loc      *time.Location
	maxTries uint
	now      func() time.Time
	log      *zap.SugaredLogger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClock replaces the clock used for the signature date.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger for retries.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid bokun base url %q", raw)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	tries := cfg.MaxTries
	if tries == 0 {
		tries = 4
	}
	c := &Client{
		baseURL:  base,
		access:   cfg.AccessKey,
		secret:   cfg.SecretKey,
		http:     &http.Client{Timeout: timeout},
		loc:      loc,
		maxTries: tries,
		now:      time.Now,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign returns the X-Bokun-Signature value for a request.
func Sign(secret, date, accessKey, method, pathAndQuery string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(date + accessKey + strings.ToUpper(method) + pathAndQuery))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type dateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type searchRequest struct {
	BookingRole    string    `json:"bookingRole"`
	StartDateRange dateRange `json:"startDateRange"`
	Page           int       `json:"page"`
	PageSize       int       `json:"pageSize"`
}

// SearchBookings returns every booking whose activity starts in [from, to]
// and the total Bokun reported.
func (c *Client) SearchBookings(ctx context.Context, from, to time.Time) ([]Booking, int, error) {
	if c == nil {
		return nil, 0, fmt.Errorf("bokun client is nil")
	}
	var (
		out   []Booking
		total int
	)
	for page := 1; page <= maxPages; page++ {
		req := searchRequest{
			BookingRole:    "SELLER",
			StartDateRange: dateRange{From: from.UTC().Format(time.RFC3339), To: to.UTC().Format(time.RFC3339)},
			Page:           page,
			PageSize:       pageSize,
		}
		body, err := c.post(ctx, searchPath, req)
		if err != nil {
			return nil, 0, fmt.Errorf("search bookings page %d: %w", page, err)
		}
		items, hits, err := parseSearch(body, c.loc)
		if err != nil {
			return nil, 0, err
		}
		total = hits
		out = append(out, items...)
		if len(items) < pageSize || len(out) >= total {
			break
		}
	}
	if total < len(out) {
		total = len(out)
	}
	return out, total, nil
}

// post sends a signed JSON request, retrying throttling, server errors and
// network failures with exponential backoff.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	op := func() ([]byte, error) {
		data, err := c.do(ctx, http.MethodPost, path, encoded)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.temporary() {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Warnf("bokun request failed, retrying in %v: %v", wait, err)
		}),
	)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: c.baseURL.Path + path})
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	date := c.now().UTC().Format(dateLayout)
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Bokun-Date", date)
	req.Header.Set("X-Bokun-AccessKey", c.access)
	req.Header.Set("X-Bokun-Signature", Sign(c.secret, date, c.access, method, req.URL.RequestURI()))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	return io.ReadAll(resp.Body)
}

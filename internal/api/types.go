package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Role names understood by the API.
const (
	RoleAdmin = "admin"
	RoleGuide = "guide"
)

// User is the authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LoginResponse mirrors POST /api/auth/login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Languages decodes either a JSON array or a comma separated string. Commas
// inside a language name cannot be escaped.
type Languages []string

// UnmarshalJSON accepts arrays, comma separated strings and falsy values.
func (l *Languages) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")), bytes.Equal(trimmed, []byte("false")), bytes.Equal(trimmed, []byte(`""`)):
		*l = Languages{}
		return nil
	case trimmed[0] == '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode languages: %w", err)
		}
		*l = cleanLanguages(list)
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode languages: %w", err)
		}
		*l = ParseLanguages(s)
		return nil
	}
	return fmt.Errorf("decode languages: unexpected %s", string(trimmed))
}

// String joins the languages with ", ".
func (l Languages) String() string {
	return strings.Join(l, ", ")
}

// ParseLanguages splits a comma separated list, dropping blanks.
func ParseLanguages(s string) Languages {
	return cleanLanguages(strings.Split(s, ","))
}

func cleanLanguages(in []string) Languages {
	out := make(Languages, 0, len(in))
	for _, lang := range in {
		if lang = strings.TrimSpace(lang); lang != "" {
			out = append(out, lang)
		}
	}
	return out
}

// Flag is a boolean that tolerates null, numbers and numeric strings.
// Absent or null values decode to false.
type Flag bool

// UnmarshalJSON coerces the database representations of a boolean.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch v := gjson.ParseBytes(data); v.Type {
	case gjson.True:
		*f = true
	case gjson.Number:
		*f = v.Float() != 0
	case gjson.String:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v.String()))
		*f = Flag(err == nil && parsed)
	default:
		*f = false
	}
	return nil
}

// Guide is a tour guide.
type Guide struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Languages Languages `json:"languages"`
	Bio       string    `json:"bio,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt string    `json:"created_at,omitempty"`
}

// NewGuide is the body of POST /api/guides.
type NewGuide struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Languages Languages `json:"languages,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
}

// Validate checks required fields.
func (g NewGuide) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if strings.TrimSpace(g.Phone) == "" {
		return &ValidationError{Field: "phone", Message: "is required"}
	}
	return nil
}

// Tour is a scheduled tour joined with its guide's name.
type Tour struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Duration     string `json:"duration"`
	Description  string `json:"description"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	GuideID      int64  `json:"guide_id"`
	GuideName    string `json:"guide_name"`
	Paid         Flag   `json:"paid"`
	Cancelled    Flag   `json:"cancelled"`
	CustomerName string `json:"customer_name,omitempty"`
	Participants int    `json:"participants,omitempty"`
	ExternalID   string `json:"external_id,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Start combines Date and Time in the local zone. Unparseable values yield
// the zero time.
func (t Tour) Start() time.Time {
	date := strings.TrimSpace(t.Date)
	if date == "" {
		return time.Time{}
	}
	clock := strings.TrimSpace(t.Time)
	if parts := strings.SplitN(clock, ":", 3); len(parts) == 3 {
		clock = parts[0] + ":" + parts[1]
	}
	if clock == "" {
		clock = "00:00"
	}
	for _, layout := range startLayouts {
		if start, err := time.ParseInLocation(layout, date+" "+clock, time.Local); err == nil {
			return start
		}
	}
	return time.Time{}
}

// startLayouts accept "09:30" as well as "9:30"; seconds are dropped first.
var startLayouts = []string{"2006-01-02 15:04", "2006-01-02 3:04"}

// NewTour is the body of POST /api/tours.
type NewTour struct {
	Title       string `json:"title"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	GuideID     int64  `json:"guideId"`
	Paid        *bool  `json:"paid,omitempty"`
	Cancelled   *bool  `json:"cancelled,omitempty"`
}

// Validate checks required fields.
func (t NewTour) Validate() error {
	switch {
	case strings.TrimSpace(t.Title) == "":
		return &ValidationError{Field: "title", Message: "is required"}
	case strings.TrimSpace(t.Date) == "":
		return &ValidationError{Field: "date", Message: "is required"}
	case strings.TrimSpace(t.Time) == "":
		return &ValidationError{Field: "time", Message: "is required"}
	case t.GuideID <= 0:
		return &ValidationError{Field: "guideId", Message: "is required"}
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(t.Date)); err != nil {
		return &ValidationError{Field: "date", Message: "must be YYYY-MM-DD"}
	}
	return nil
}

// TourPatch is a partial update. Nil fields are left unchanged.
type TourPatch struct {
	Title       *string `json:"title,omitempty"`
	Duration    *string `json:"duration,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	GuideID     *int64  `json:"guideId,omitempty"`
	Paid        *bool   `json:"paid,omitempty"`
	Cancelled   *bool   `json:"cancelled,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TourPatch) Empty() bool {
	return p.Title == nil && p.Duration == nil && p.Description == nil && p.Date == nil &&
		p.Time == nil && p.GuideID == nil && p.Paid == nil && p.Cancelled == nil
}

// Apply returns t with the patch applied. The guide name is not resolved.
func (p TourPatch) Apply(t Tour) Tour {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Duration != nil {
		t.Duration = *p.Duration
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Time != nil {
		t.Time = *p.Time
	}
	if p.GuideID != nil {
		t.GuideID = *p.GuideID
	}
	if p.Paid != nil {
		t.Paid = Flag(*p.Paid)
	}
	if p.Cancelled != nil {
		t.Cancelled = Flag(*p.Cancelled)
	}
	return t
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Page is a normalized listing.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// GuidePage is a page of guides.
type GuidePage = Page[Guide]

// TourPage is a page of tours.
type TourPage = Page[Tour]

// PageQuery selects a page. Zero values leave the choice to the server.
type PageQuery struct {
	Page    int
	PerPage int
}

// DecodePage normalizes the two listing shapes served by the API: a bare
// JSON array (older servers) and {data, pagination}.
func DecodePage[T any](body []byte) (Page[T], error) {
	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return Page[T]{}, fmt.Errorf("decode list: %w", err)
		}
		if items == nil {
			items = []T{}
		}
		return Page[T]{
			Data:       items,
			Pagination: Pagination{Page: 1, PerPage: len(items), Total: len(items), TotalPages: 1},
		}, nil
	case root.IsObject() && root.Get("data").IsArray():
		var page Page[T]
		if err := json.Unmarshal(body, &page); err != nil {
			return Page[T]{}, fmt.Errorf("decode page: %w", err)
		}
		if page.Data == nil {
			page.Data = []T{}
		}
		if page.Pagination.Total == 0 && !root.Get("pagination").Exists() {
			page.Pagination = Pagination{Page: 1, PerPage: len(page.Data), Total: len(page.Data), TotalPages: 1}
		}
		return page, nil
	case root.IsObject() && root.Get("data").Type == gjson.Null:
		return Page[T]{Data: []T{}, Pagination: Pagination{Page: 1, TotalPages: 1}}, nil
	}
	return Page[T]{}, fmt.Errorf("decode list: unexpected response shape")
}

// SyncEnabledResponse mirrors GET /api/bokun_sync?action=config.
type SyncEnabledResponse struct {
	SyncEnabled bool `json:"sync_enabled"`
}

// SyncResult mirrors GET /api/bokun_sync?action=sync.
type SyncResult struct {
	Success       bool   `json:"success"`
	SyncedCount   int    `json:"synced_count"`
	TotalBookings int    `json:"total_bookings"`
	Error         string `json:"error,omitempty"`
}

// MessageResponse is returned by delete endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// ChangeEvent is pushed on the websocket change feed after a mutation.
type ChangeEvent struct {
	Type     string    `json:"type"`
	Resource string    `json:"resource"`
	ID       int64     `json:"id,omitempty"`
	At       time.Time `json:"at"`
}

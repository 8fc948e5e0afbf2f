// Package store persists the guidedesk back-office data: users, guides,
// tours, the sync switch and the Bokun sync audit log. Memory backs tests
// and single-node demos; MySQL backs production.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/guidedesk/guidedesk/internal/api"
)

var (
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a duplicate unique key.
	ErrConflict = errors.New("already exists")
	// ErrUnknownGuide rejects a tour pointing at a guide that does not exist.
	ErrUnknownGuide = errors.New("unknown guide")
)

// User is a back-office account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

// Booking is a tour imported from Bokun, keyed by its confirmation code.
type Booking struct {
	ExternalID   string
	Title        string
	Duration     string
	Description  string
	Date         string
	Time         string
	CustomerName string
	Participants int
	Paid         bool
	Cancelled    bool
	// GuideID is applied only when the booking is first imported.
	GuideID int64
}

// SyncRun is one entry of the Bokun sync audit log.
type SyncRun struct {
	ID            int64
	Trigger       string
	Type          string
	Success       bool
	SyncedCount   int
	TotalBookings int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Store is the persistence contract of the API server.
type Store interface {
	UserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)

	ListGuides(ctx context.Context, page Page) ([]api.Guide, int, error)
	GetGuide(ctx context.Context, id int64) (api.Guide, error)
	CreateGuide(ctx context.Context, g api.NewGuide) (api.Guide, error)
	DeleteGuide(ctx context.Context, id int64) error

	ListTours(ctx context.Context, page Page) ([]api.Tour, int, error)
	GetTour(ctx context.Context, id int64) (api.Tour, error)
	CreateTour(ctx context.Context, t api.NewTour) (api.Tour, error)
	UpdateTour(ctx context.Context, id int64, patch api.TourPatch) (api.Tour, error)
	DeleteTour(ctx context.Context, id int64) error
	// UpsertBooking inserts or refreshes the tour with b.ExternalID and
	// reports whether anything changed.
	UpsertBooking(ctx context.Context, b Booking) (bool, error)

	SyncEnabled(ctx context.Context) (bool, error)
	SetSyncEnabled(ctx context.Context, enabled bool) error
	RecordSyncRun(ctx context.Context, run SyncRun) (SyncRun, error)
	// SyncRuns returns the newest runs first.
	SyncRuns(ctx context.Context, limit int) ([]SyncRun, error)

	Close() error
}

// Page limits.
const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// Page selects a slice of a listing.
type Page struct {
	Page    int
	PerPage int
}

// Normalize fills defaults and clamps PerPage.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PerPage < 1:
		p.PerPage = DefaultPerPage
	case p.PerPage > MaxPerPage:
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset is the number of rows before the page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}

// Pagination describes page p of a listing with total rows.
func (p Page) Pagination(total int) api.Pagination {
	p = p.Normalize()
	pages := (total + p.PerPage - 1) / p.PerPage
	if pages < 1 {
		pages = 1
	}
	return api.Pagination{Page: p.Page, PerPage: p.PerPage, Total: total, TotalPages: pages}
}

// Sync types recorded in the audit log.
const (
	SyncTypeManual = "manual"
	SyncTypeAuto   = "auto"
)

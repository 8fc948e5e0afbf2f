package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guidedesk/guidedesk/internal/api"
)

// Memory is an in-process Store.
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	users       map[string]User
	guides      map[int64]api.Guide
	tours       map[int64]api.Tour
	runs        []SyncRun
	syncEnabled bool
	nextID      int64
}

// NewMemory returns an empty store with sync enabled.
func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		users:       make(map[string]User),
		guides:      make(map[int64]api.Guide),
		tours:       make(map[int64]api.Tour),
		syncEnabled: true,
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) stamp() string {
	return m.now().UTC().Format(time.RFC3339)
}

// UserByUsername implements Store.
func (m *Memory) UserByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(username)]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// CreateUser implements Store.
func (m *Memory) CreateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := m.users[key]; ok {
		return User{}, ErrConflict
	}
	u.ID = m.id()
	m.users[key] = u
	return u, nil
}

// ListGuides implements Store. Guides are ordered by name.
func (m *Memory) ListGuides(_ context.Context, page Page) ([]api.Guide, int, error) {
	m.mu.RLock()
	all := make([]api.Guide, 0, len(m.guides))
	for _, g := range m.guides {
		all = append(all, cloneGuide(g))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, page), len(all), nil
}

// GetGuide implements Store.
func (m *Memory) GetGuide(_ context.Context, id int64) (api.Guide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guides[id]
	if !ok {
		return api.Guide{}, ErrNotFound
	}
	return cloneGuide(g), nil
}

// CreateGuide implements Store.
func (m *Memory) CreateGuide(_ context.Context, in api.NewGuide) (api.Guide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := api.Guide{
		ID:        m.id(),
		Name:      strings.TrimSpace(in.Name),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		Languages: append(api.Languages{}, in.Languages...),
		Bio:       in.Bio,
		PhotoURL:  in.PhotoURL,
		CreatedAt: m.stamp(),
	}
	m.guides[g.ID] = g
	return cloneGuide(g), nil
}

// DeleteGuide implements Store. Tours of the guide become unassigned.
func (m *Memory) DeleteGuide(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.guides[id]; !ok {
		return ErrNotFound
	}
	delete(m.guides, id)
	for tid, t := range m.tours {
		if t.GuideID == id {
			t.GuideID = 0
			m.tours[tid] = t
		}
	}
	return nil
}

// ListTours implements Store. Tours are ordered by date, time and id, with
// the guide name joined in.
func (m *Memory) ListTours(_ context.Context, page Page) ([]api.Tour, int, error) {
	m.mu.RLock()
	all := make([]api.Tour, 0, len(m.tours))
	for _, t := range m.tours {
		all = append(all, m.joined(t))
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return paginate(all, page), len(all), nil
}

// GetTour implements Store.
func (m *Memory) GetTour(_ context.Context, id int64) (api.Tour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tours[id]
	if !ok {
		return api.Tour{}, ErrNotFound
	}
	return m.joined(t), nil
}

// CreateTour implements Store.
func (m *Memory) CreateTour(_ context.Context, in api.NewTour) (api.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.guides[in.GuideID]; !ok {
		return api.Tour{}, ErrUnknownGuide
	}
	t := api.Tour{
		ID:          m.id(),
		Title:       strings.TrimSpace(in.Title),
		Duration:    in.Duration,
		Description: in.Description,
		Date:        strings.TrimSpace(in.Date),
		Time:        strings.TrimSpace(in.Time),
		GuideID:     in.GuideID,
		UpdatedAt:   m.stamp(),
	}
	if in.Paid != nil {
		t.Paid = api.Flag(*in.Paid)
	}
	if in.Cancelled != nil {
		t.Cancelled = api.Flag(*in.Cancelled)
	}
	m.tours[t.ID] = t
	return m.joined(t), nil
}

// UpdateTour implements Store.
func (m *Memory) UpdateTour(_ context.Context, id int64, patch api.TourPatch) (api.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tours[id]
	if !ok {
		return api.Tour{}, ErrNotFound
	}
	if patch.GuideID != nil {
		if _, ok := m.guides[*patch.GuideID]; !ok {
			return api.Tour{}, ErrUnknownGuide
		}
	}
	t = patch.Apply(t)
	t.UpdatedAt = m.stamp()
	m.tours[id] = t
	return m.joined(t), nil
}

// DeleteTour implements Store.
func (m *Memory) DeleteTour(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tours[id]; !ok {
		return ErrNotFound
	}
	delete(m.tours, id)
	return nil
}

// UpsertBooking implements Store.
func (m *Memory) UpsertBooking(_ context.Context, b Booking) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tours {
		if t.ExternalID != b.ExternalID {
			continue
		}
		next := applyBooking(t, b)
		if next == t {
			return false, nil
		}
		next.UpdatedAt = m.stamp()
		m.tours[id] = next
		return true, nil
	}

	t := applyBooking(api.Tour{ID: m.id(), ExternalID: b.ExternalID}, b)
	if _, ok := m.guides[b.GuideID]; ok {
		t.GuideID = b.GuideID
	}
	t.UpdatedAt = m.stamp()
	m.tours[t.ID] = t
	return true, nil
}

func applyBooking(t api.Tour, b Booking) api.Tour {
	t.Title = b.Title
	t.Duration = b.Duration
	if b.Description != "" {
		t.Description = b.Description
	}
	t.Date = b.Date
	t.Time = b.Time
	t.CustomerName = b.CustomerName
	t.Participants = b.Participants
	t.Paid = api.Flag(b.Paid)
	t.Cancelled = api.Flag(b.Cancelled)
	return t
}

// SyncEnabled implements Store.
func (m *Memory) SyncEnabled(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncEnabled, nil
}

// SetSyncEnabled implements Store.
func (m *Memory) SetSyncEnabled(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncEnabled = enabled
	return nil
}

// RecordSyncRun implements Store.
func (m *Memory) RecordSyncRun(_ context.Context, run SyncRun) (SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.id()
	m.runs = append(m.runs, run)
	return run, nil
}

// SyncRuns implements Store.
func (m *Memory) SyncRuns(_ context.Context, limit int) ([]SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SyncRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func (m *Memory) joined(t api.Tour) api.Tour {
	t.GuideName = ""
	if g, ok := m.guides[t.GuideID]; ok {
		t.GuideName = g.Name
	}
	return t
}

func cloneGuide(g api.Guide) api.Guide {
	g.Languages = append(api.Languages{}, g.Languages...)
	return g
}

func paginate[T any](all []T, page Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := min(start+page.PerPage, len(all))
	return all[start:end]
}

package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/syncer"
	"github.com/guidedesk/guidedesk/internal/tours"
)

// maxActivity bounds the sync activity log kept for the UI.
const maxActivity = 100

// SyncStatus is what the UI knows about the booking sync.
type SyncStatus struct {
	State    syncer.State
	Trigger  syncer.Trigger
	LastSync time.Time
	Last     events.Event
	HasLast  bool
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Tours               []api.Tour
	Guides              []api.Guide
	Source              tours.Source
	HasData             bool
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive refresh failures
	Sync                SyncStatus
	Activity            []events.Event // Newest last
	Toast               string
	ToastAt             time.Time
}

// IsOffline returns true when the API has been unreachable for multiple refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update records a refresh. Listings that came back empty because the API
// failed do not replace data already shown.
func (s *Store) Update(tourRes tours.Result[api.Tour], guideRes tours.Result[api.Guide]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if tourRes.Source != tours.SourceEmpty || tourRes.Err == nil || !s.snapshot.HasData {
		s.snapshot.Tours = cloneSlice(tourRes.Data)
		s.snapshot.Source = tourRes.Source
		s.snapshot.HasData = true
	}
	if guideRes.Source != tours.SourceEmpty || guideRes.Err == nil || s.snapshot.Guides == nil {
		s.snapshot.Guides = cloneSlice(guideRes.Data)
	}

	if err := errors.Join(tourRes.Err, guideRes.Err); err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Fail records a refresh that produced nothing at all.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = err
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures++
}

// Record folds a sync lifecycle event into the snapshot.
func (s *Store) Record(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Kind == events.Notification {
		s.snapshot.Toast = e.Message
		s.snapshot.ToastAt = e.At
		return
	}

	st := &s.snapshot.Sync
	switch e.Kind {
	case events.SyncStarted:
		st.State = syncer.InProgress
		st.Trigger = syncer.Trigger(e.Trigger)
	case events.SyncCompleted:
		st.State = syncer.Idle
		st.LastSync = e.At
	case events.SyncFailed:
		st.State = syncer.Idle
	}
	st.Last = e
	st.HasLast = true

	s.snapshot.Activity = append(s.snapshot.Activity, e)
	if over := len(s.snapshot.Activity) - maxActivity; over > 0 {
		s.snapshot.Activity = append([]events.Event(nil), s.snapshot.Activity[over:]...)
	}
}

// SetLastSync seeds the last successful sync time, typically from the
// persisted state on startup.
func (s *Store) SetLastSync(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.snapshot.Sync.LastSync) {
		s.snapshot.Sync.LastSync = t
	}
}

// DismissToast clears the current notification.
func (s *Store) DismissToast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Toast = ""
	s.snapshot.ToastAt = time.Time{}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Tours = cloneSlice(s.snapshot.Tours)
	snap.Guides = cloneSlice(s.snapshot.Guides)
	snap.Activity = cloneSlice(s.snapshot.Activity)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func cloneSlice[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	dup := make([]T, len(items))
	copy(dup, items)
	return dup
}

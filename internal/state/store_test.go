package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/syncer"
	"github.com/guidedesk/guidedesk/internal/tours"
)

func tourResult(src tours.Source, err error, list ...api.Tour) tours.Result[api.Tour] {
	return tours.Result[api.Tour]{Data: list, Source: src, Err: err}
}

func guideResult(src tours.Source, err error, list ...api.Guide) tours.Result[api.Guide] {
	return tours.Result[api.Guide]{Data: list, Source: src, Err: err}
}

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.Update(
		tourResult(tours.SourceRemote, nil, api.Tour{ID: 1}, api.Tour{ID: 2}),
		guideResult(tours.SourceRemote, nil, api.Guide{ID: 7, Name: "Marco"}),
	)

	snap := s.Snapshot()
	if !snap.HasData || snap.Source != tours.SourceRemote {
		t.Fatalf("snapshot HasData=%v Source=%q, want true remote", snap.HasData, snap.Source)
	}
	if len(snap.Tours) != 2 || snap.Tours[0].ID != 1 {
		t.Fatalf("snapshot tours = %#v, want 2 items", snap.Tours)
	}
	if len(snap.Guides) != 1 || snap.Guides[0].Name != "Marco" {
		t.Fatalf("snapshot guides = %#v, want Marco", snap.Guides)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Tours[0].ID = 999
	snap2 := s.Snapshot()
	if snap2.Tours[0].ID != 1 {
		t.Fatalf("Snapshot should clone tours; got id %d want 1", snap2.Tours[0].ID)
	}
}

func TestStore_EmptyFallbackKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update(tourResult(tours.SourceRemote, nil, api.Tour{ID: 1}), guideResult(tours.SourceRemote, nil, api.Guide{ID: 1}))

	origErr := errors.New("boom")
	s.Update(tourResult(tours.SourceEmpty, origErr), guideResult(tours.SourceEmpty, origErr))

	snap := s.Snapshot()
	if len(snap.Tours) != 1 || snap.Tours[0].ID != 1 {
		t.Fatalf("tours changed on error: got %#v", snap.Tours)
	}
	if len(snap.Guides) != 1 {
		t.Fatalf("guides changed on error: got %#v", snap.Guides)
	}
	if snap.Source != tours.SourceRemote {
		t.Fatalf("Source = %q, want remote", snap.Source)
	}
	if snap.LastError == nil || !errors.Is(snap.LastError, origErr) {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should wrap error instance")
	}
}

func TestStore_StaleFallbackReplacesData(t *testing.T) {
	var s Store

	s.Update(tourResult(tours.SourceRemote, nil, api.Tour{ID: 1}), guideResult(tours.SourceRemote, nil))
	s.Update(tourResult(tours.SourceStale, errors.New("offline"), api.Tour{ID: 1}, api.Tour{ID: -5}), guideResult(tours.SourceRemote, nil))

	snap := s.Snapshot()
	if len(snap.Tours) != 2 || snap.Source != tours.SourceStale {
		t.Fatalf("snapshot = %d tours from %q, want 2 from stale", len(snap.Tours), snap.Source)
	}
	if snap.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
}

func TestStore_FirstEmptyResultMarksLoaded(t *testing.T) {
	var s Store

	s.Update(tourResult(tours.SourceEmpty, errors.New("offline")), guideResult(tours.SourceEmpty, errors.New("offline")))

	snap := s.Snapshot()
	if !snap.HasData || snap.Source != tours.SourceEmpty {
		t.Fatalf("HasData=%v Source=%q, want true empty", snap.HasData, snap.Source)
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	snap := s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("fresh store failures=%d offline=%v", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Fail(errors.New("fail 1"))
	if snap = s.Snapshot(); snap.IsOffline() {
		t.Fatal("IsOffline() = true, want false with 1 failure")
	}

	s.Update(tourResult(tours.SourceEmpty, errors.New("fail 2")), guideResult(tours.SourceEmpty, nil))
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 2 || !snap.IsOffline() {
		t.Fatalf("failures=%d offline=%v, want 2 true", snap.ConsecutiveFailures, snap.IsOffline())
	}

	s.Update(tourResult(tours.SourceRemote, nil), guideResult(tours.SourceRemote, nil))
	snap = s.Snapshot()
	if snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("failures=%d offline=%v after success, want 0 false", snap.ConsecutiveFailures, snap.IsOffline())
	}
}

func TestStore_RecordSyncLifecycle(t *testing.T) {
	var s Store
	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	s.Record(events.Event{Kind: events.SyncStarted, Trigger: string(syncer.TriggerPeriodic), At: at})
	snap := s.Snapshot()
	if snap.Sync.State != syncer.InProgress || snap.Sync.Trigger != syncer.TriggerPeriodic {
		t.Fatalf("sync = %+v, want in progress periodic", snap.Sync)
	}

	s.Record(events.Event{Kind: events.SyncCompleted, Trigger: string(syncer.TriggerPeriodic), SyncedCount: 3, At: at.Add(time.Second)})
	s.Record(events.Event{Kind: events.Notification, Message: "3 bookings synced from Bokun", At: at.Add(time.Second)})
	snap = s.Snapshot()
	if snap.Sync.State != syncer.Idle {
		t.Fatalf("State = %v, want idle", snap.Sync.State)
	}
	if !snap.Sync.LastSync.Equal(at.Add(time.Second)) {
		t.Fatalf("LastSync = %v", snap.Sync.LastSync)
	}
	if snap.Toast != "3 bookings synced from Bokun" {
		t.Fatalf("Toast = %q", snap.Toast)
	}
	if len(snap.Activity) != 2 {
		t.Fatalf("Activity len = %d, want 2 (notifications are not activity)", len(snap.Activity))
	}

	s.Record(events.Event{Kind: events.SyncFailed, Err: errors.New("HTTP 500"), At: at.Add(time.Minute)})
	snap = s.Snapshot()
	if !snap.Sync.LastSync.Equal(at.Add(time.Second)) {
		t.Fatalf("failed sync moved LastSync to %v", snap.Sync.LastSync)
	}

	s.DismissToast()
	if snap = s.Snapshot(); snap.Toast != "" {
		t.Fatalf("Toast = %q after dismiss", snap.Toast)
	}
}

func TestStore_ActivityIsBounded(t *testing.T) {
	var s Store
	for i := 0; i < maxActivity+10; i++ {
		s.Record(events.Event{Kind: events.SyncSkipped, Reason: "interval not elapsed", SyncedCount: i})
	}
	snap := s.Snapshot()
	if len(snap.Activity) != maxActivity {
		t.Fatalf("Activity len = %d, want %d", len(snap.Activity), maxActivity)
	}
	if snap.Activity[0].SyncedCount != 10 {
		t.Fatalf("oldest kept = %d, want 10", snap.Activity[0].SyncedCount)
	}
}

func TestStore_SetLastSyncOnlyMovesForward(t *testing.T) {
	var s Store
	now := time.Now()
	s.SetLastSync(now)
	s.SetLastSync(now.Add(-time.Hour))
	if got := s.Snapshot().Sync.LastSync; !got.Equal(now) {
		t.Fatalf("LastSync = %v, want %v", got, now)
	}
}

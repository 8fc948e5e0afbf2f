package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/kv"
	"github.com/guidedesk/guidedesk/internal/session"
	"github.com/guidedesk/guidedesk/internal/syncer/mocks"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	ch     chan events.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan events.Event, 64)}
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.ch <- e:
	default:
	}
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; saw %v", kind, r.kinds())
		}
	}
}

var (
	admin = session.Session{Token: "jwt", Role: "admin", Name: "Giulia"}
	guide = session.Session{Token: "jwt", Role: "guide", Name: "Luca"}
	t0    = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	remote *mocks.MockRemote
	state  *kv.MemoryStore
	rec    *recorder
	clock  *clock
	orch   *Orchestrator
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		remote: mocks.NewMockRemote(ctrl),
		state:  kv.NewMemory(),
		rec:    newRecorder(),
		clock:  &clock{now: t0},
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.orch = New(f.remote, f.state, f.rec, cfg, opts...)
	return f
}

func (f *fixture) setLastSync(t *testing.T, at time.Time) {
	t.Helper()
	require.NoError(t, f.state.Set(KeyLastSync, at.Format(time.RFC3339Nano)))
}

func manualConfig() Config {
	return Config{Enabled: true, Interval: 15 * time.Minute}
}

func TestPerformSync_SuccessPersistsAndNotifies(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "periodic").Return(api.SyncResult{Success: true, SyncedCount: 3, TotalBookings: 10}, nil)

	f.orch.PerformSync(context.Background(), TriggerPeriodic)

	assert.Equal(t, []events.Kind{events.SyncStarted, events.SyncCompleted, events.Notification}, f.rec.kinds())
	completed := f.rec.events[1]
	assert.Equal(t, 3, completed.SyncedCount)
	assert.Equal(t, 10, completed.TotalCount)
	assert.Equal(t, "3 bookings synced from Bokun", f.rec.events[2].Message)

	last, ok := f.orch.LastSyncTime()
	require.True(t, ok)
	assert.True(t, last.Equal(t0))
	assert.Equal(t, Idle, f.orch.State())
}

func TestPerformSync_ManualDoesNotNotify(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "manual").Return(api.SyncResult{Success: true, SyncedCount: 5, TotalBookings: 5}, nil)

	f.orch.PerformSync(context.Background(), TriggerManual)

	assert.Equal(t, []events.Kind{events.SyncStarted, events.SyncCompleted}, f.rec.kinds())
}

func TestPerformSync_NothingSyncedDoesNotNotify(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "focus").Return(api.SyncResult{Success: true, TotalBookings: 4}, nil)

	f.orch.PerformSync(context.Background(), TriggerFocus)

	assert.Equal(t, 0, f.rec.count(events.Notification))
}

func TestPerformSync_DisabledOnServer(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(false, nil)

	f.orch.PerformSync(context.Background(), TriggerManual)

	require.Equal(t, []events.Kind{events.SyncStarted, events.SyncSkipped}, f.rec.kinds())
	assert.Equal(t, ReasonDisabled, f.rec.events[1].Reason)
	_, ok := f.orch.LastSyncTime()
	assert.False(t, ok)
	assert.Equal(t, Idle, f.orch.State())
}

func TestPerformSync_FailuresLeaveLastSyncUntouched(t *testing.T) {
	tests := []struct {
		name   string
		result api.SyncResult
		err    error
		want   string
	}{
		{name: "network", err: &api.NetworkError{Method: "GET", Path: "/api/bokun_sync", Err: errors.New("connection refused")}, want: "connection refused"},
		{name: "server", err: &api.ServerError{Status: 500, Body: `{"message":"bokun down"}`}, want: "bokun down"},
		{name: "unsuccessful body", result: api.SyncResult{Success: false, Error: "invalid Bokun credentials"}, want: "invalid Bokun credentials"},
		{name: "unsuccessful body without message", result: api.SyncResult{}, want: "unsuccessful sync"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, manualConfig())
			previous := t0.Add(-time.Hour)
			f.setLastSync(t, previous)
			f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
			f.remote.EXPECT().RunSync(gomock.Any(), "manual").Return(tt.result, tt.err)

			f.orch.PerformSync(context.Background(), TriggerManual)

			require.Equal(t, []events.Kind{events.SyncStarted, events.SyncFailed}, f.rec.kinds())
			assert.ErrorContains(t, f.rec.events[1].Err, tt.want)
			last, ok := f.orch.LastSyncTime()
			require.True(t, ok)
			assert.True(t, last.Equal(previous))
			assert.Equal(t, Idle, f.orch.State())
		})
	}
}

func TestPerformSync_ConfigCheckFailure(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(false, &api.ServerError{Status: 401})

	f.orch.PerformSync(context.Background(), TriggerManual)

	require.Equal(t, []events.Kind{events.SyncStarted, events.SyncFailed}, f.rec.kinds())
	assert.ErrorIs(t, f.rec.events[1].Err, api.ErrUnauthorized)
}

func TestPerformSync_PanicResetsState(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "manual").DoAndReturn(func(context.Context, string) (api.SyncResult, error) {
		panic("decoder exploded")
	})

	require.NotPanics(t, func() { f.orch.PerformSync(context.Background(), TriggerManual) })

	assert.Equal(t, Idle, f.orch.State())
	require.Equal(t, []events.Kind{events.SyncStarted, events.SyncFailed}, f.rec.kinds())
	assert.ErrorContains(t, f.rec.events[1].Err, "decoder exploded")
}

func TestPerformSync_MutualExclusion(t *testing.T) {
	f := newFixture(t, manualConfig())
	release := make(chan struct{})
	entered := make(chan struct{})
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil).Times(1)
	f.remote.EXPECT().RunSync(gomock.Any(), "periodic").DoAndReturn(func(context.Context, string) (api.SyncResult, error) {
		close(entered)
		<-release
		return api.SyncResult{Success: true}, nil
	}).Times(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orch.PerformSync(context.Background(), TriggerPeriodic)
	}()
	<-entered
	require.Equal(t, InProgress, f.orch.State())

	f.orch.PerformSync(context.Background(), TriggerManual)

	assert.Equal(t, 1, f.rec.count(events.SyncSkipped))
	skipped := f.rec.events[len(f.rec.events)-1]
	assert.Equal(t, ReasonInProgress, skipped.Reason)
	assert.Equal(t, "manual", skipped.Trigger)

	close(release)
	<-done
	assert.Equal(t, Idle, f.orch.State())
	assert.Equal(t, 1, f.rec.count(events.SyncCompleted))
}

func TestShouldSync(t *testing.T) {
	f := newFixture(t, manualConfig())

	ok, reason := f.orch.ShouldSync(TriggerPeriodic)
	assert.True(t, ok)
	assert.Equal(t, ReasonNeverSynced, reason)

	f.setLastSync(t, t0.Add(-10*time.Minute))
	ok, reason = f.orch.ShouldSync(TriggerPeriodic)
	assert.False(t, ok)
	assert.Equal(t, ReasonNotDue, reason)

	ok, reason = f.orch.ShouldSync(TriggerManual)
	assert.True(t, ok)
	assert.Equal(t, ReasonManual, reason)

	f.clock.Set(t0.Add(5 * time.Minute))
	ok, reason = f.orch.ShouldSync(TriggerFocus)
	assert.True(t, ok, "interval boundary is inclusive")
	assert.Equal(t, ReasonIntervalElapsed, reason)
}

func TestShouldSync_MalformedLastSyncCountsAsAbsent(t *testing.T) {
	f := newFixture(t, manualConfig())
	require.NoError(t, f.state.Set(KeyLastSync, "yesterday"))

	ok, reason := f.orch.ShouldSync(TriggerVisibility)
	assert.True(t, ok)
	assert.Equal(t, ReasonNeverSynced, reason)
}

func TestRequest_TriggerGating(t *testing.T) {
	f := newFixture(t, manualConfig())
	ctx := context.Background()
	require.NoError(t, f.orch.Start(ctx, admin))
	t.Cleanup(f.orch.Stop)

	f.setLastSync(t, t0.Add(-10*time.Minute))
	f.orch.Request(ctx, TriggerPeriodic)
	require.Equal(t, []events.Kind{events.SyncSkipped}, f.rec.kinds())
	assert.Equal(t, ReasonNotDue, f.rec.events[0].Reason)

	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "manual").Return(api.SyncResult{Success: true}, nil)
	f.orch.Request(ctx, TriggerManual)
	assert.Equal(t, 1, f.rec.count(events.SyncCompleted))
}

func TestRequest_SkippedWhenStopped(t *testing.T) {
	f := newFixture(t, manualConfig())

	f.orch.Request(context.Background(), TriggerManual)

	require.Equal(t, []events.Kind{events.SyncSkipped}, f.rec.kinds())
	assert.Equal(t, ReasonStopped, f.rec.events[0].Reason)
}

func TestRequest_PerTriggerSwitches(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		trigger Trigger
		reason  string
	}{
		{name: "auto sync off", cfg: Config{Enabled: false, OnFocusSync: true}, trigger: TriggerPeriodic, reason: ReasonAutoSyncOff},
		{name: "focus off", cfg: Config{Enabled: true, OnFocusSync: false}, trigger: TriggerFocus, reason: ReasonFocusSyncOff},
		{name: "visibility follows focus switch", cfg: Config{Enabled: true, OnFocusSync: false}, trigger: TriggerVisibility, reason: ReasonFocusSyncOff},
		{name: "startup off", cfg: Config{Enabled: true}, trigger: TriggerStartup, reason: ReasonStartupSyncOff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			require.NoError(t, f.orch.Start(context.Background(), admin))
			t.Cleanup(f.orch.Stop)

			f.orch.Request(context.Background(), tt.trigger)

			require.Equal(t, []events.Kind{events.SyncSkipped}, f.rec.kinds())
			assert.Equal(t, tt.reason, f.rec.events[0].Reason)
		})
	}
}

func TestRequest_FocusIsDebounced(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, Interval: time.Nanosecond, OnFocusSync: true}, WithDebounce(time.Hour))
	require.NoError(t, f.orch.Start(context.Background(), admin))
	t.Cleanup(f.orch.Stop)

	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil).Times(1)
	f.remote.EXPECT().RunSync(gomock.Any(), "focus").Return(api.SyncResult{Success: true}, nil).Times(1)

	f.orch.Request(context.Background(), TriggerFocus)
	f.clock.Set(t0.Add(time.Minute))
	f.orch.Request(context.Background(), TriggerFocus)

	assert.Equal(t, 1, f.rec.count(events.SyncCompleted))
}

func TestStart_RequiresAdmin(t *testing.T) {
	f := newFixture(t, manualConfig())

	err := f.orch.Start(context.Background(), guide)
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.False(t, f.orch.Running())

	err = f.orch.Start(context.Background(), session.Session{})
	assert.ErrorIs(t, err, ErrNotAdmin)

	require.NoError(t, f.orch.Start(context.Background(), admin))
	require.NoError(t, f.orch.Start(context.Background(), admin))
	assert.True(t, f.orch.Running())

	// A later non-admin session stops the running orchestrator.
	assert.ErrorIs(t, f.orch.Start(context.Background(), guide), ErrNotAdmin)
	assert.False(t, f.orch.Running())
	assert.False(t, f.orch.TimerActive())

	f.orch.Stop()
}

func TestStart_RunsStartupSync(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, Interval: time.Hour, OnStartupSync: true})
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "startup").Return(api.SyncResult{Success: true, SyncedCount: 1, TotalBookings: 1}, nil)

	require.NoError(t, f.orch.Start(context.Background(), admin))
	t.Cleanup(f.orch.Stop)

	e := f.rec.waitFor(t, events.Notification)
	assert.Equal(t, "1 booking synced from Bokun", e.Message)
}

func TestSetConfig_TogglesTimer(t *testing.T) {
	f := newFixture(t, Config{Enabled: false, Interval: 20 * time.Millisecond})
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil).MinTimes(1)
	f.remote.EXPECT().RunSync(gomock.Any(), "periodic").Return(api.SyncResult{Success: true}, nil).MinTimes(1)

	require.NoError(t, f.orch.Start(context.Background(), admin))
	t.Cleanup(f.orch.Stop)
	assert.False(t, f.orch.TimerActive())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, f.rec.count(events.SyncStarted), "disabled timer must not fire")

	f.orch.SetConfig(Config{Enabled: true, Interval: 20 * time.Millisecond})
	assert.True(t, f.orch.TimerActive())

	e := f.rec.waitFor(t, events.SyncCompleted)
	assert.Equal(t, "periodic", e.Trigger)

	f.orch.SetConfig(Config{Enabled: false, Interval: 20 * time.Millisecond})
	assert.False(t, f.orch.TimerActive())
}

func TestStop_IsIdempotent(t *testing.T) {
	f := newFixture(t, manualConfig())
	f.orch.Stop()
	require.NoError(t, f.orch.Start(context.Background(), admin))
	f.orch.Stop()
	f.orch.Stop()
	assert.False(t, f.orch.Running())
}

func TestSources_DriveRequests(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, Interval: time.Hour, OnFocusSync: true}, WithDebounce(0))
	manual := NewChannelSource()
	visibility := NewVisibilitySource()
	f.orch.AddSource(manual)
	f.orch.AddSource(visibility)

	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil).Times(2)
	f.remote.EXPECT().RunSync(gomock.Any(), "manual").Return(api.SyncResult{Success: true}, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "visibility").Return(api.SyncResult{Success: true}, nil)

	require.NoError(t, f.orch.Start(context.Background(), admin))
	t.Cleanup(f.orch.Stop)

	require.True(t, manual.Fire(TriggerManual))
	e := f.rec.waitFor(t, events.SyncCompleted)
	assert.Equal(t, "manual", e.Trigger)

	// The manual sync recorded a last sync time; clear it so the visibility
	// trigger is due.
	require.NoError(t, f.state.Delete(KeyLastSync))
	assert.False(t, visibility.SetVisible(true), "already visible")
	assert.False(t, visibility.SetVisible(false))
	assert.True(t, visibility.SetVisible(true))
	e = f.rec.waitFor(t, events.SyncCompleted)
	assert.Equal(t, "visibility", e.Trigger)
}

func TestSources_TriggerDuringSyncIsSkipped(t *testing.T) {
	f := newFixture(t, manualConfig())
	manual := NewChannelSource()
	f.orch.AddSource(manual)

	release := make(chan struct{})
	entered := make(chan struct{})
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil).Times(1)
	f.remote.EXPECT().RunSync(gomock.Any(), "manual").DoAndReturn(func(context.Context, string) (api.SyncResult, error) {
		close(entered)
		<-release
		return api.SyncResult{Success: true}, nil
	}).Times(1)

	require.NoError(t, f.orch.Start(context.Background(), admin))
	t.Cleanup(f.orch.Stop)

	require.True(t, manual.Fire(TriggerManual))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sync never reached the remote")
	}

	require.True(t, manual.Fire(TriggerManual))
	skipped := f.rec.waitFor(t, events.SyncSkipped)
	assert.Equal(t, ReasonInProgress, skipped.Reason)
	assert.Equal(t, "manual", skipped.Trigger)

	close(release)
	f.rec.waitFor(t, events.SyncCompleted)
	assert.Equal(t, 1, f.rec.count(events.SyncStarted))
	assert.Equal(t, 1, f.rec.count(events.SyncSkipped))
}

func TestStop_WaitsForStartupSync(t *testing.T) {
	f := newFixture(t, Config{Enabled: true, Interval: time.Hour, OnStartupSync: true})
	entered := make(chan struct{})
	f.remote.EXPECT().SyncEnabled(gomock.Any()).Return(true, nil)
	f.remote.EXPECT().RunSync(gomock.Any(), "startup").DoAndReturn(func(ctx context.Context, _ string) (api.SyncResult, error) {
		close(entered)
		<-ctx.Done()
		return api.SyncResult{}, ctx.Err()
	})

	require.NoError(t, f.orch.Start(context.Background(), admin))
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("startup sync never reached the remote")
	}

	f.orch.Stop()

	assert.Equal(t, Idle, f.orch.State())
	assert.Equal(t, 1, f.rec.count(events.SyncFailed), "startup attempt must finish before Stop returns")
	assert.Equal(t, []events.Kind{events.SyncStarted, events.SyncFailed}, f.rec.kinds())
}

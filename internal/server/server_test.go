package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/bokun"
	"github.com/guidedesk/guidedesk/internal/server/store"
)

const (
	adminUser = "admin"
	guideUser = "maria"
	password  = "s3cret-pass"
)

type fakeSource struct {
	mu       sync.Mutex
	bookings []bokun.Booking
	err      error
	calls    int
}

func (f *fakeSource) SearchBookings(context.Context, time.Time, time.Time) ([]bokun.Booking, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.bookings, len(f.bookings), nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	srv   *Server
	store *store.Memory
	http  *httptest.Server
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	_, err := store.EnsureUser(ctx, st, adminUser, password, api.RoleAdmin)
	require.NoError(t, err)
	_, err = store.EnsureUser(ctx, st, guideUser, password, api.RoleGuide)
	require.NoError(t, err)

	cfg := Config{JWTSecret: "test-secret", TokenTTL: time.Hour, Driver: DriverMemory}
	srv, err := New(cfg, st, nil, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return &testEnv{srv: srv, store: st, http: ts}
}

func (e *testEnv) client(t *testing.T, token string) *api.Client {
	t.Helper()
	c, err := api.NewClient(e.http.URL, api.WithTokenSource(api.TokenFunc(func() (string, error) {
		return token, nil
	})))
	require.NoError(t, err)
	return c
}

func (e *testEnv) login(t *testing.T, username string) *api.Client {
	t.Helper()
	resp, err := e.client(t, "").Login(context.Background(), username, password)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	return e.client(t, resp.Token)
}

func statusOf(err error) int {
	var se *api.ServerError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func TestHealthNeedsNoToken(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.client(t, "").Health(context.Background()))
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.client(t, "").Login(ctx, "ADMIN", password)
	require.NoError(t, err)
	assert.Equal(t, adminUser, resp.User.Username)
	assert.Equal(t, api.RoleAdmin, resp.User.Role)

	claims, err := env.srv.tokens.parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID())
	assert.True(t, claims.IsAdmin())

	_, err = env.client(t, "").Login(ctx, adminUser, "wrong")
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = env.client(t, "").Login(ctx, "nobody", password)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client(t, "").ListTours(ctx, api.PageQuery{})
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = env.client(t, "garbage").ListTours(ctx, api.PageQuery{})
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestExpiredTokenRejected(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var skew atomic.Int64
	env := newTestEnv(t, WithClock(func() time.Time { return now.Add(time.Duration(skew.Load())) }))

	c := env.login(t, guideUser)
	skew.Store(int64(2 * time.Hour))

	_, err := c.ListGuides(context.Background(), api.PageQuery{})
	require.ErrorIs(t, err, api.ErrUnauthorized)
	var se *api.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Token expired", se.Message())
}

func TestGuidesAndTours(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.login(t, guideUser)

	guide, err := c.CreateGuide(ctx, api.NewGuide{Name: "Ana", Phone: "+34 600", Languages: api.Languages{"es", "en"}})
	require.NoError(t, err)
	assert.Positive(t, guide.ID)

	tour, err := c.CreateTour(ctx, api.NewTour{
		Title: "Old town", Duration: "2h", Date: "2026-05-02", Time: "10:00", GuideID: guide.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", tour.GuideName)
	assert.False(t, bool(tour.Paid))

	paid, err := c.SetTourPaid(ctx, tour.ID, true)
	require.NoError(t, err)
	assert.True(t, bool(paid.Paid))

	title := "Old town walk"
	updated, err := c.UpdateTour(ctx, tour.ID, api.TourPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.True(t, bool(updated.Paid))

	cancelled, err := c.SetTourCancelled(ctx, tour.ID, true)
	require.NoError(t, err)
	assert.True(t, bool(cancelled.Cancelled))

	page, err := c.ListTours(ctx, api.PageQuery{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, api.Pagination{Page: 1, PerPage: 10, Total: 1, TotalPages: 1}, page.Pagination)

	guides, err := c.ListGuides(ctx, api.PageQuery{})
	require.NoError(t, err)
	require.Len(t, guides.Data, 1)
	assert.Equal(t, api.Languages{"es", "en"}, guides.Data[0].Languages)

	require.NoError(t, c.DeleteTour(ctx, tour.ID))
	assert.ErrorIs(t, c.DeleteTour(ctx, tour.ID), api.ErrNotFound)

	require.NoError(t, c.DeleteGuide(ctx, guide.ID))
	assert.ErrorIs(t, c.DeleteGuide(ctx, guide.ID), api.ErrNotFound)
}

func TestCreateTourRejectsUnknownGuide(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, guideUser)

	_, err := c.CreateTour(context.Background(), api.NewTour{Title: "x", Date: "2026-05-02", Time: "10:00", GuideID: 99})
	require.ErrorIs(t, err, api.ErrValidation)
	var se *api.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Guide not found", se.Message())
}

func TestUpdateTourValidates(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, guideUser)

	bad := "02/05/2026"
	_, err := c.UpdateTour(context.Background(), 1, api.TourPatch{Date: &bad})
	assert.ErrorIs(t, err, api.ErrValidation)

	title := "x"
	_, err = c.UpdateTour(context.Background(), 42, api.TourPatch{Title: &title})
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestPaidRequiresField(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.client(t, "").Login(context.Background(), guideUser, password)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, env.http.URL+"/api/tours/1/paid", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncConfigAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	guide := env.login(t, guideUser)
	enabled, err := guide.SyncEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, http.StatusForbidden, statusOf(guide.SetSyncEnabled(ctx, false)))

	admin := env.login(t, adminUser)
	require.NoError(t, admin.SetSyncEnabled(ctx, false))
	enabled, err = guide.SyncEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestRunSync(t *testing.T) {
	start := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	src := &fakeSource{bookings: []bokun.Booking{
		{ConfirmationCode: "BKN-1", Title: "Kayak", Start: start, HasTime: true, CustomerName: "Lee", Participants: 2, Paid: true},
		{ConfirmationCode: "BKN-2", Title: "Tapas", Start: start.AddDate(0, 0, 1)},
	}}
	env := newTestEnv(t, WithBookingSource(src))
	ctx := context.Background()

	_, err := env.login(t, guideUser).RunSync(ctx, "manual")
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	admin := env.login(t, adminUser)
	result, err := admin.RunSync(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, api.SyncResult{Success: true, SyncedCount: 2, TotalBookings: 2}, result)

	result, err = admin.RunSync(ctx, "timer")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SyncedCount)

	page, err := admin.ListTours(ctx, api.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Kayak", page.Data[0].Title)
	assert.Equal(t, "09:30", page.Data[0].Time)
	assert.Equal(t, "BKN-1", page.Data[0].ExternalID)

	runs, err := env.store.SyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "timer", runs[0].Trigger)
	assert.Equal(t, store.SyncTypeAuto, runs[0].Type)
	assert.Equal(t, store.SyncTypeManual, runs[1].Type)
}

func getSyncLog(t *testing.T, env *testEnv, username string) (int, []map[string]any) {
	t.Helper()
	login, err := env.client(t, "").Login(context.Background(), username, password)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/bokun_sync?action=log", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data []map[string]any `json:"data"`
	}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body.Data
}

func TestSyncLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 2, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		_, err := env.store.RecordSyncRun(ctx, store.SyncRun{
			Trigger:     fmt.Sprintf("run-%02d", i),
			Type:        store.SyncTypeAuto,
			Success:     i%2 == 0,
			SyncedCount: i,
			StartedAt:   started.Add(time.Duration(i) * time.Minute),
			FinishedAt:  started.Add(time.Duration(i)*time.Minute + time.Second),
		})
		require.NoError(t, err)
	}

	status, _ := getSyncLog(t, env, guideUser)
	assert.Equal(t, http.StatusForbidden, status)

	status, runs := getSyncLog(t, env, adminUser)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, runs, syncLogLimit)
	assert.Equal(t, "run-24", runs[0]["triggered_by"])
	assert.Equal(t, "run-05", runs[syncLogLimit-1]["triggered_by"])
	assert.Equal(t, store.SyncTypeAuto, runs[0]["type"])
	assert.Equal(t, true, runs[0]["success"])
	assert.EqualValues(t, 24, runs[0]["synced_count"])
	assert.Equal(t, "2026-05-02T06:24:00Z", runs[0]["started_at"])
	assert.Equal(t, "2026-05-02T06:24:01Z", runs[0]["finished_at"])
}

func TestRunSyncDisabledBlocksAutoOnly(t *testing.T) {
	src := &fakeSource{}
	env := newTestEnv(t, WithBookingSource(src))
	ctx := context.Background()
	require.NoError(t, env.store.SetSyncEnabled(ctx, false))
	admin := env.login(t, adminUser)

	result, err := admin.RunSync(ctx, "timer")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Bokun sync is disabled", result.Error)
	assert.Zero(t, src.Calls())

	result, err = admin.RunSync(ctx, "manual")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, src.Calls())
}

func TestRunSyncReportsUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.login(t, adminUser).RunSync(ctx, "manual")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, bokun.ErrNotConfigured.Error())

	runs, err := env.store.SyncRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
}

func TestWatchReceivesChanges(t *testing.T) {
	env := newTestEnv(t)
	c := env.login(t, guideUser)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan api.ChangeEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(ev api.ChangeEvent) { events <- ev })
	}()
	require.Eventually(t, func() bool { return env.srv.Hub().Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	guide, err := c.CreateGuide(context.Background(), api.NewGuide{Name: "Ana", Phone: "1"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, eventCreated, ev.Type)
		assert.Equal(t, resourceGuide, ev.Resource)
		assert.Equal(t, guide.ID, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchNeedsToken(t *testing.T) {
	env := newTestEnv(t)
	err := env.client(t, "").Watch(context.Background(), nil)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestMetricsAndCORS(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.client(t, "").Health(context.Background()))

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `guidedesk_http_requests_total{method="GET",route="/api/health",status="200"}`)

	req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/api/tours", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/guidedesk/guidedesk/internal/config"
	"github.com/guidedesk/guidedesk/internal/events"
	"github.com/guidedesk/guidedesk/internal/session"
	"github.com/guidedesk/guidedesk/internal/syncer"
)

func writeConfig(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		`api_url = "` + apiURL + `"`,
		`state_file = "` + filepath.Join(dir, "state.json") + `"`,
		`log_level = "debug"`,
		`[sync]`,
		`interval_minutes = 10`,
		`on_focus_sync = false`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func bootstrap(t *testing.T, apiURL string) *Deps {
	t.Helper()
	keyring.MockInit()
	t.Setenv(session.EnvToken, "")
	d, err := Bootstrap(Options{ConfigPath: writeConfig(t, apiURL), Console: true, LogLevel: "error"})
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestSyncConfig(t *testing.T) {
	got := SyncConfig(config.Sync{Enabled: true, IntervalMinutes: 10, OnStartupSync: false, OnFocusSync: true})
	want := syncer.Config{Enabled: true, Interval: 10 * time.Minute, OnStartupSync: false, OnFocusSync: true}
	if got != want {
		t.Fatalf("SyncConfig() = %+v, want %+v", got, want)
	}
}

func TestBootstrap_AppliesConfigAndOverrides(t *testing.T) {
	d := bootstrap(t, "http://example.test:9000")

	if d.Client.BaseURL() != "http://example.test:9000" {
		t.Fatalf("BaseURL = %q", d.Client.BaseURL())
	}
	if d.Config.LogLevel != "error" {
		t.Fatalf("LogLevel = %q, want override", d.Config.LogLevel)
	}
	cfg := d.Syncer.Config()
	if cfg.Interval != 10*time.Minute || cfg.OnFocusSync {
		t.Fatalf("syncer config = %+v", cfg)
	}
	if d.Syncer.Running() {
		t.Fatal("orchestrator should start stopped")
	}
	if d.LogFile != "" {
		t.Fatalf("LogFile = %q, want empty in console mode", d.LogFile)
	}
}

func newSyncServer(t *testing.T, enabled bool, result string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/bokun_sync" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("action") {
		case "config":
			_ = json.NewEncoder(w).Encode(map[string]bool{"sync_enabled": enabled})
		case "sync":
			_, _ = w.Write([]byte(result))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, d *Deps, role string) {
	t.Helper()
	if err := d.Sessions.Save(session.Session{Token: "admin-token", Role: role, Name: "ada"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
}

func TestSyncNow(t *testing.T) {
	srv := newSyncServer(t, true, `{"success":true,"synced_count":3,"total_bookings":5}`)
	d := bootstrap(t, srv.URL)
	login(t, d, "admin")

	e, err := SyncNow(context.Background(), d)
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if e.Kind != events.SyncCompleted || e.SyncedCount != 3 || e.TotalCount != 5 {
		t.Fatalf("event = %+v", e)
	}
	if _, ok := d.Syncer.LastSyncTime(); !ok {
		t.Fatal("last sync time not persisted")
	}
}

func TestSyncNow_Failure(t *testing.T) {
	srv := newSyncServer(t, true, `{"success":false,"error":"Bokun credentials missing"}`)
	d := bootstrap(t, srv.URL)
	login(t, d, "admin")

	e, err := SyncNow(context.Background(), d)
	if err == nil || !strings.Contains(err.Error(), "Bokun credentials missing") {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if e.Kind != events.SyncFailed {
		t.Fatalf("event kind = %s, want sync_failed", e.Kind)
	}
}

func TestSyncNow_Disabled(t *testing.T) {
	srv := newSyncServer(t, false, "")
	d := bootstrap(t, srv.URL)
	login(t, d, "admin")

	e, err := SyncNow(context.Background(), d)
	if err != nil {
		t.Fatalf("SyncNow() error = %v", err)
	}
	if e.Kind != events.SyncSkipped || e.Reason != syncer.ReasonDisabled {
		t.Fatalf("event = %+v, want skipped disabled", e)
	}
}

func TestSyncNow_RequiresAdmin(t *testing.T) {
	d := bootstrap(t, "http://127.0.0.1:1")

	if _, err := SyncNow(context.Background(), d); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("no session: err = %v, want ErrLoginRequired", err)
	}

	login(t, d, "guide")
	if _, err := SyncNow(context.Background(), d); !errors.Is(err, syncer.ErrNotAdmin) {
		t.Fatalf("guide session: err = %v, want ErrNotAdmin", err)
	}
}

func TestRunAgent_NeedsAdminSession(t *testing.T) {
	keyring.MockInit()
	t.Setenv(session.EnvToken, "")
	path := writeConfig(t, "http://127.0.0.1:1")
	opts := Options{ConfigPath: path, Console: true, LogLevel: "error"}

	if err := RunAgent(context.Background(), opts); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("no session: err = %v, want ErrLoginRequired", err)
	}

	d, err := Bootstrap(opts)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	login(t, d, "guide")
	d.Close()

	if err := RunAgent(context.Background(), opts); !errors.Is(err, syncer.ErrNotAdmin) {
		t.Fatalf("guide session: err = %v, want ErrNotAdmin", err)
	}
}

func TestRunAgent_StopsOnCancel(t *testing.T) {
	keyring.MockInit()
	t.Setenv(session.EnvToken, "")
	path := writeConfig(t, "http://127.0.0.1:1")
	opts := Options{ConfigPath: path, Console: true, LogLevel: "error"}

	d, err := Bootstrap(opts)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	login(t, d, "admin")
	d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	if err := RunAgent(ctx, opts); err != nil {
		t.Fatalf("RunAgent() error = %v", err)
	}
}

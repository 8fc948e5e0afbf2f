package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.APIURL, defaultAPIURL)
	}
	if cfg.Sync != DefaultSync() {
		t.Fatalf("Sync = %+v, want %+v", cfg.Sync, DefaultSync())
	}
	if cfg.Sync.Interval() != 15*time.Minute {
		t.Fatalf("Interval = %v, want 15m", cfg.Sync.Interval())
	}
	if cfg.CacheTTL != 60*time.Second {
		t.Fatalf("CacheTTL = %v, want 60s", cfg.CacheTTL)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_url = "  https://bookings.example.com  "
request_timeout = "3s"
cache_ttl = "2m"
log_level = "DEBUG"
log_file = "  ~/.guidedesk/guidedesk.log  "

[sync]
enabled = false
interval_minutes = 30
on_focus_sync = false
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "https://bookings.example.com" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
	if cfg.RequestTimeout != 3*time.Second || cfg.CacheTTL != 2*time.Minute {
		t.Fatalf("durations = %v/%v, want 3s/2m", cfg.RequestTimeout, cfg.CacheTTL)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !strings.HasPrefix(cfg.LogFile, home) {
		t.Fatalf("LogFile = %q, want it under HOME %q", cfg.LogFile, home)
	}
	want := Sync{Enabled: false, IntervalMinutes: 30, OnStartupSync: true, OnFocusSync: false}
	if cfg.Sync != want {
		t.Fatalf("Sync = %+v, want %+v", cfg.Sync, want)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "interval zero", body: "[sync]\ninterval_minutes = 0\n"},
		{name: "bad duration", body: "cache_ttl = \"soon\"\n"},
		{name: "bad level", body: "log_level = \"chatty\"\n"},
		{name: "bad toml", body: "api_url = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load returned nil error")
			}
		})
	}
}

func TestExpandPath_Tilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/guidedesk/config.toml")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	if got != filepath.Join(home, "guidedesk", "config.toml") {
		t.Fatalf("expandPath = %q", got)
	}
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath accepted empty path")
	}
}

func TestWatch_AppliesRewrittenSyncTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[sync]\nenabled = true\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Config, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(cfg Config) { changes <- cfg })
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-changes:
			if !cfg.Sync.Enabled && cfg.Sync.IntervalMinutes == 5 {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Watch returned error: %v", err)
				}
				return
			}
		case <-tick.C:
			// Rewrite until the watcher, which starts asynchronously, sees it.
			if err := os.WriteFile(path, []byte("[sync]\nenabled = false\ninterval_minutes = 5\n"), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for config reload")
		}
	}
}

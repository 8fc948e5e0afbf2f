package ui

import (
	"testing"
	"time"
)

func TestGetThemeFallsBack(t *testing.T) {
	if got := GetTheme("missing").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(missing) = %q, want Nightfox", got)
	}
	if got := GetTheme("Slate").Name; got != "Slate" {
		t.Fatalf("GetTheme(Slate) = %q", got)
	}
}

func TestNextThemeCycles(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames = %v, want 3 themes", names)
	}
	current := names[0]
	for range names {
		current = NextTheme(current)
	}
	if current != names[0] {
		t.Fatalf("cycling %d times ended on %q, want %q", len(names), current, names[0])
	}
	if got := NextTheme("unknown"); got != names[0] {
		t.Fatalf("NextTheme(unknown) = %q, want %q", got, names[0])
	}
}

func TestThemesDefineBadges(t *testing.T) {
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, badge := range []string{badgePaid, badgeUnpaid, badgeCancelled, badgeLocal, badgeSyncing, badgeOffline} {
			if th.BadgeColors[badge] == "" {
				t.Errorf("theme %s has no color for badge %q", name, badge)
			}
		}
	}
}

func TestLastSyncLabel(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		last time.Time
		want string
	}{
		{time.Time{}, "Never synced"},
		{now.Add(-20 * time.Second), "Last sync just now"},
		{now.Add(-15 * time.Minute), "Last sync 15m ago"},
		{now.Add(-90 * time.Minute), "Last sync 1h 30m ago"},
		{now.Add(-72 * time.Hour), "Last sync 3d ago"},
	}
	for _, tt := range tests {
		if got := lastSyncLabel(tt.last, now); got != tt.want {
			t.Errorf("lastSyncLabel(%v) = %q, want %q", tt.last, got, tt.want)
		}
	}
}

func TestRelativeStart(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := relativeStart(now.Add(2*time.Hour), now); got != "in 2h" {
		t.Fatalf("relativeStart future = %q", got)
	}
	if got := relativeStart(now.Add(-5*time.Minute), now); got != "5m ago" {
		t.Fatalf("relativeStart past = %q", got)
	}
	if got := relativeStart(time.Time{}, now); got != "" {
		t.Fatalf("relativeStart zero = %q", got)
	}
}

package ui

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"a longer title", 8, "a lon..."},
		{"abcdef", 3, "abc"},
		{"  padded  ", 20, "padded"},
		{"Città", 4, "C..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestFitPadsToWidth(t *testing.T) {
	if got := fit("ab", 5); got != "ab   " {
		t.Fatalf("fit = %q", got)
	}
	if got := fit("abcdefgh", 6); got != "abc..." {
		t.Fatalf("fit long = %q", got)
	}
}

func TestTruncateMiddle(t *testing.T) {
	got := truncateMiddle("/home/ada/.local/state/guidedesk/guidedesk.log", 20)
	if len(got) != 20 || got[:5] != "/home" || got[len(got)-4:] != ".log" {
		t.Fatalf("truncateMiddle = %q", got)
	}
}

func TestTourBadge(t *testing.T) {
	if label, _ := tourBadge(apiTour(-1, false, false)); label != "LOCAL" {
		t.Fatalf("local badge = %q", label)
	}
	if label, _ := tourBadge(apiTour(1, true, true)); label != "CANCELLED" {
		t.Fatalf("cancelled badge = %q", label)
	}
	if label, _ := tourBadge(apiTour(1, true, false)); label != "PAID" {
		t.Fatalf("paid badge = %q", label)
	}
}

package api

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestDecodePage_NormalizesShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantNames []string
		wantPage  Pagination
	}{
		{
			name:      "bare array",
			body:      `[{"id":1,"name":"Marco","phone":"+39123"},{"id":2,"name":"Giulia","phone":"+39456"}]`,
			wantNames: []string{"Marco", "Giulia"},
			wantPage:  Pagination{Page: 1, PerPage: 2, Total: 2, TotalPages: 1},
		},
		{
			name:      "paginated",
			body:      `{"data":[{"id":3,"name":"Luca","phone":"1"}],"pagination":{"page":2,"per_page":1,"total":5,"total_pages":5}}`,
			wantNames: []string{"Luca"},
			wantPage:  Pagination{Page: 2, PerPage: 1, Total: 5, TotalPages: 5},
		},
		{
			name:      "empty array",
			body:      `[]`,
			wantNames: []string{},
			wantPage:  Pagination{Page: 1, PerPage: 0, Total: 0, TotalPages: 1},
		},
		{
			name:      "null data",
			body:      `{"data":null}`,
			wantNames: []string{},
			wantPage:  Pagination{Page: 1, TotalPages: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodePage[Guide]([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodePage returned error: %v", err)
			}
			names := make([]string, 0, len(page.Data))
			for _, g := range page.Data {
				names = append(names, g.Name)
			}
			if !reflect.DeepEqual(names, tt.wantNames) {
				t.Fatalf("names = %v, want %v", names, tt.wantNames)
			}
			if page.Pagination != tt.wantPage {
				t.Fatalf("pagination = %+v, want %+v", page.Pagination, tt.wantPage)
			}
		})
	}
}

func TestDecodePage_RejectsUnknownShape(t *testing.T) {
	if _, err := DecodePage[Guide]([]byte(`{"guides":[]}`)); err == nil {
		t.Fatalf("DecodePage returned nil error for unknown shape")
	}
}

func TestTour_FlagsCoerceToBool(t *testing.T) {
	body := `[
		{"id":1,"paid":null,"cancelled":0},
		{"id":2,"paid":1,"cancelled":"1"},
		{"id":3,"paid":true},
		{"id":4,"paid":"false","cancelled":false}
	]`
	var tours []Tour
	if err := json.Unmarshal([]byte(body), &tours); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	want := []struct{ paid, cancelled bool }{
		{false, false},
		{true, true},
		{true, false},
		{false, false},
	}
	for i, w := range want {
		if bool(tours[i].Paid) != w.paid || bool(tours[i].Cancelled) != w.cancelled {
			t.Fatalf("tour %d = paid %v cancelled %v, want %v %v", tours[i].ID, tours[i].Paid, tours[i].Cancelled, w.paid, w.cancelled)
		}
	}
}

func TestLanguages_AcceptsArrayStringAndFalsy(t *testing.T) {
	tests := []struct {
		body string
		want Languages
	}{
		{body: `{"languages":["Italian"," English "]}`, want: Languages{"Italian", "English"}},
		{body: `{"languages":"Italian, English,,Spanish"}`, want: Languages{"Italian", "English", "Spanish"}},
		{body: `{"languages":null}`, want: Languages{}},
		{body: `{"languages":""}`, want: Languages{}},
		{body: `{"languages":false}`, want: Languages{}},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			var g Guide
			if err := json.Unmarshal([]byte(tt.body), &g); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if !reflect.DeepEqual(g.Languages, tt.want) {
				t.Fatalf("Languages = %#v, want %#v", g.Languages, tt.want)
			}
		})
	}
}

func TestTourPatch_Apply(t *testing.T) {
	paid := true
	title := "Uffizi at dawn"
	base := Tour{ID: 9, Title: "Uffizi", Paid: false, GuideName: "Marco"}
	got := TourPatch{Title: &title, Paid: &paid}.Apply(base)
	if got.Title != title || !bool(got.Paid) || got.GuideName != "Marco" {
		t.Fatalf("Apply = %+v", got)
	}
	if (TourPatch{}).Empty() != true {
		t.Fatalf("empty patch not reported as empty")
	}
}

func TestNewTour_Validate(t *testing.T) {
	valid := NewTour{Title: "Duomo", Date: "2026-10-20", Time: "09:30", GuideID: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	bad := valid
	bad.Date = "20/10/2026"
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate accepted malformed date")
	}
	bad = valid
	bad.GuideID = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate accepted missing guide")
	}
}

func TestTour_StartAcceptsShortHoursAndSeconds(t *testing.T) {
	want := time.Date(2026, 10, 20, 9, 30, 0, 0, time.Local)
	for _, clock := range []string{"09:30", "9:30", "09:30:00", "9:30:00", " 9:30 "} {
		got := Tour{Date: "2026-10-20", Time: clock}.Start()
		if !got.Equal(want) {
			t.Errorf("Start() with time %q = %v, want %v", clock, got, want)
		}
	}

	evening := Tour{Date: "2026-10-20", Time: "18:45:00"}.Start()
	if evening.Hour() != 18 || evening.Minute() != 45 {
		t.Errorf("Start() = %v, want 18:45", evening)
	}
	if got := (Tour{Date: "2026-10-20"}).Start(); !got.Equal(time.Date(2026, 10, 20, 0, 0, 0, 0, time.Local)) {
		t.Errorf("Start() without time = %v, want midnight", got)
	}
	if got := (Tour{Date: "2026-10-20", Time: "noon"}).Start(); !got.IsZero() {
		t.Errorf("Start() with bad time = %v, want zero", got)
	}
}

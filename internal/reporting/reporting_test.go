package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
)

type fakeStore struct {
	scopes []Scope
	funnel map[time.Time]Funnel
	calls  map[time.Time]CallCounts
	gran   Granularity
}

func (f *fakeStore) FunnelCounts(_ context.Context, s Scope) (Funnel, error) {
	f.scopes = append(f.scopes, s)
	return f.funnel[s.Start], nil
}

func (f *fakeStore) CallCounts(_ context.Context, s Scope) (CallCounts, error) {
	f.scopes = append(f.scopes, s)
	return f.calls[s.Start], nil
}

func (f *fakeStore) CallSeries(_ context.Context, s Scope, g Granularity) (Graph, error) {
	f.scopes = append(f.scopes, s)
	f.gran = g
	return Graph{}, nil
}

type branches struct{}

func (branches) BranchFor(_ context.Context, _ auth.User, branchID string) (org.Branch, error) {
	if branchID != "branch_1" {
		return org.Branch{}, org.ErrBranchNotFound
	}
	return org.Branch{ID: branchID, OrganizationID: "org_1"}, nil
}

var caller = auth.User{ID: "user_1", OrganizationID: "org_1", Role: auth.RoleAdmin}

func day(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		"2024-05-01":                day(1),
		"2024-05-01T06:30:00":       day(1).Add(6*time.Hour + 30*time.Minute),
		"2024-05-01T06:30:00+05:30": day(1).Add(time.Hour),
		"2024-05-01T00:00:00Z":      day(1),
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", in, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("ParseTime(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseRange(t *testing.T) {
	var verr *validate.Error
	if _, _, err := ParseRange("2024-05-02", "2024-05-01"); !errors.As(err, &verr) || verr.Fields[0].Field != "end_date" {
		t.Fatalf("expected end_date error, got %v", err)
	}
	if _, _, err := ParseRange("", ""); !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}
	s, e, err := ParseRange("2024-05-01", "2024-05-01")
	if err != nil || !s.Equal(e) {
		t.Fatalf("equal bounds should be accepted: %v", err)
	}
}

func TestParseGranularity(t *testing.T) {
	for _, in := range []string{"hour", "Day", "week", "month", "year"} {
		if _, err := ParseGranularity(in); err != nil {
			t.Fatalf("ParseGranularity(%q): %v", in, err)
		}
	}
	var verr *validate.Error
	if _, err := ParseGranularity("minute"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTrend(t *testing.T) {
	cases := []struct{ cur, prev, want float64 }{
		{10, 5, 100},
		{5, 10, -50},
		{3, 0, 100},
		{0, 0, 0},
		{0, 4, -100},
	}
	for _, tc := range cases {
		if got := Trend(tc.cur, tc.prev); got != tc.want {
			t.Fatalf("Trend(%v, %v) = %v, want %v", tc.cur, tc.prev, got, tc.want)
		}
	}
}

func TestFunnelTrendsUsesPreviousWindow(t *testing.T) {
	store := &fakeStore{
		funnel: map[time.Time]Funnel{
			day(8): {LeadCreatedSuspect: 6, CallClosed: 1},
			day(1): {LeadCreatedSuspect: 3},
		},
	}
	svc := NewService(store, branches{})

	got, err := svc.FunnelTrends(context.Background(), caller, Query{BranchID: "branch_1", Start: "2024-05-08", End: "2024-05-15"})
	if err != nil {
		t.Fatalf("FunnelTrends: %v", err)
	}
	if got.Trends["lead_created_suspect"] != 100 || got.Trends["call_closed"] != 100 || got.Trends["first_meeting_completed"] != 0 {
		t.Fatalf("unexpected trends: %+v", got.Trends)
	}
	if len(got.Trends) != 7 {
		t.Fatalf("expected every funnel key, got %d", len(got.Trends))
	}
	prev := store.scopes[1]
	if !prev.Start.Equal(day(1)) || !prev.End.Equal(day(8)) || prev.BranchID != "branch_1" {
		t.Fatalf("unexpected previous window: %+v", prev)
	}
}

func TestCallTrendsAndCounts(t *testing.T) {
	store := &fakeStore{
		calls: map[time.Time]CallCounts{
			day(8): {CallStarted: 4, AppointmentCall: 4, DurationMinutes: 12},
			day(1): {CallStarted: 8, AppointmentCall: 2, DurationMinutes: 12},
		},
	}
	svc := NewService(store, branches{})
	q := Query{BranchID: "branch_1", Start: "2024-05-08", End: "2024-05-15"}

	got, err := svc.CallTrends(context.Background(), caller, q)
	if err != nil {
		t.Fatalf("CallTrends: %v", err)
	}
	want := map[string]float64{
		"event_count_call_started":     -50,
		"event_count_appointment_call": 100,
		"event_count_meeting_call":     0,
		"duration_sum":                 0,
	}
	for k, v := range want {
		if got.Trends[k] != v {
			t.Fatalf("%s = %v, want %v", k, got.Trends[k], v)
		}
	}

	counts, err := svc.Counts(context.Background(), caller, q)
	if err != nil || counts.Calls.CallStarted != 4 {
		t.Fatalf("Counts: %v %+v", err, counts)
	}
	if _, err := svc.Counts(context.Background(), caller, Query{BranchID: "branch_9", Start: "2024-05-08", End: "2024-05-15"}); !errors.Is(err, org.ErrBranchNotFound) {
		t.Fatalf("expected branch not found, got %v", err)
	}
}

func TestGraphsValidatesGranularity(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, branches{})
	q := Query{BranchID: "branch_1", Start: "2024-05-01", End: "2024-05-31"}

	g, err := svc.Graphs(context.Background(), caller, q, "week")
	if err != nil {
		t.Fatalf("Graphs: %v", err)
	}
	if store.gran != Week || g.CallCount == nil || g.TotalDurationMinutes == nil {
		t.Fatalf("unexpected graph: %+v gran=%s", g, store.gran)
	}
	if _, err := svc.Graphs(context.Background(), caller, q, "fortnight"); err == nil {
		t.Fatalf("expected granularity error")
	}
}

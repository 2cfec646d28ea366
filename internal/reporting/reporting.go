// Package reporting aggregates domain events into funnel and call metrics.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
)

// Granularity is the bucket width of a time series.
type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// ParseGranularity accepts one of hour, day, week, month or year.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Hour, Day, Week, Month, Year:
		return g, nil
	default:
		return "", validate.Fail("granularity", "oneof", "must be one of: hour day week month year")
	}
}

// Scope selects the events of one branch inside [Start, End].
type Scope struct {
	OrganizationID string
	BranchID       string
	Start          time.Time
	End            time.Time
}

// previous is the window of equal length ending where s starts.
func (s Scope) previous() Scope {
	d := s.End.Sub(s.Start)
	p := s
	p.Start = s.Start.Add(-d)
	p.End = s.End.Add(-d)
	return p
}

// Funnel counts distinct leads reaching each funnel stage.
type Funnel struct {
	LeadCreatedSuspect         int64 `json:"lead_created_suspect"`
	LeadStatusYetToContact     int64 `json:"lead_status_yet_to_contact"`
	LeadStatusContactedDropped int64 `json:"lead_status_contacted_dropped"`
	FirstMeetingScheduled      int64 `json:"first_meeting_scheduled"`
	FirstMeetingCompleted      int64 `json:"first_meeting_completed"`
	SecondMeetingScheduled     int64 `json:"second_meeting_scheduled"`
	CallClosed                 int64 `json:"call_closed"`
}

func (f Funnel) values() map[string]float64 {
	return map[string]float64{
		"lead_created_suspect":          float64(f.LeadCreatedSuspect),
		"lead_status_yet_to_contact":    float64(f.LeadStatusYetToContact),
		"lead_status_contacted_dropped": float64(f.LeadStatusContactedDropped),
		"first_meeting_scheduled":       float64(f.FirstMeetingScheduled),
		"first_meeting_completed":       float64(f.FirstMeetingCompleted),
		"second_meeting_scheduled":      float64(f.SecondMeetingScheduled),
		"call_closed":                   float64(f.CallClosed),
	}
}

// CallCounts summarizes started calls and their total talk time.
type CallCounts struct {
	CallStarted     int64   `json:"event_count_call_started"`
	AppointmentCall int64   `json:"event_count_appointment_call"`
	MeetingCall     int64   `json:"event_count_meeting_call"`
	DurationMinutes float64 `json:"duration_sum"`
}

func (c CallCounts) values() map[string]float64 {
	return map[string]float64{
		"event_count_call_started":     float64(c.CallStarted),
		"event_count_appointment_call": float64(c.AppointmentCall),
		"event_count_meeting_call":     float64(c.MeetingCall),
		"duration_sum":                 c.DurationMinutes,
	}
}

type CountPoint struct {
	EventDate time.Time `json:"event_date"`
	CallCount int64     `json:"call_count"`
}

type DurationPoint struct {
	EventDate            time.Time `json:"event_date"`
	TotalDurationMinutes float64   `json:"total_duration_minutes"`
}

// Graph is a bucketed call series.
type Graph struct {
	CallCount            []CountPoint    `json:"call_count"`
	TotalDurationMinutes []DurationPoint `json:"total_duration_minutes"`
}

type Counts struct {
	Funnel Funnel     `json:"funnel_metrics"`
	Calls  CallCounts `json:"call_metrics"`
}

type FunnelTrends struct {
	Trends map[string]float64 `json:"funnel_trends"`
}

type CallTrends struct {
	Trends map[string]float64 `json:"call_trends"`
}

// Store runs the aggregate queries.
type Store interface {
	FunnelCounts(ctx context.Context, s Scope) (Funnel, error)
	CallCounts(ctx context.Context, s Scope) (CallCounts, error)
	CallSeries(ctx context.Context, s Scope, g Granularity) (Graph, error)
}

type BranchResolver interface {
	BranchFor(ctx context.Context, caller auth.User, branchID string) (org.Branch, error)
}

type Service struct {
	store    Store
	branches BranchResolver
}

func NewService(store Store, branches BranchResolver) *Service {
	return &Service{store: store, branches: branches}
}

// Query is an unvalidated metrics request.
type Query struct {
	BranchID string
	Start    string
	End      string
}

func (s *Service) scope(ctx context.Context, caller auth.User, q Query) (Scope, error) {
	start, end, err := ParseRange(q.Start, q.End)
	if err != nil {
		return Scope{}, err
	}
	branch, err := s.branches.BranchFor(ctx, caller, q.BranchID)
	if err != nil {
		return Scope{}, err
	}
	return Scope{OrganizationID: branch.OrganizationID, BranchID: branch.ID, Start: start, End: end}, nil
}

func (s *Service) Counts(ctx context.Context, caller auth.User, q Query) (Counts, error) {
	sc, err := s.scope(ctx, caller, q)
	if err != nil {
		return Counts{}, err
	}
	funnel, err := s.store.FunnelCounts(ctx, sc)
	if err != nil {
		return Counts{}, fmt.Errorf("funnel counts: %w", err)
	}
	calls, err := s.store.CallCounts(ctx, sc)
	if err != nil {
		return Counts{}, fmt.Errorf("call counts: %w", err)
	}
	return Counts{Funnel: funnel, Calls: calls}, nil
}

func (s *Service) Graphs(ctx context.Context, caller auth.User, q Query, granularity string) (Graph, error) {
	g, err := ParseGranularity(granularity)
	if err != nil {
		return Graph{}, err
	}
	sc, err := s.scope(ctx, caller, q)
	if err != nil {
		return Graph{}, err
	}
	graph, err := s.store.CallSeries(ctx, sc, g)
	if err != nil {
		return Graph{}, fmt.Errorf("call series: %w", err)
	}
	if graph.CallCount == nil {
		graph.CallCount = []CountPoint{}
	}
	if graph.TotalDurationMinutes == nil {
		graph.TotalDurationMinutes = []DurationPoint{}
	}
	return graph, nil
}

// FunnelTrends compares funnel counts with the preceding window of equal
// length.
func (s *Service) FunnelTrends(ctx context.Context, caller auth.User, q Query) (FunnelTrends, error) {
	sc, err := s.scope(ctx, caller, q)
	if err != nil {
		return FunnelTrends{}, err
	}
	cur, err := s.store.FunnelCounts(ctx, sc)
	if err != nil {
		return FunnelTrends{}, fmt.Errorf("funnel counts: %w", err)
	}
	prev, err := s.store.FunnelCounts(ctx, sc.previous())
	if err != nil {
		return FunnelTrends{}, fmt.Errorf("previous funnel counts: %w", err)
	}
	return FunnelTrends{Trends: trends(cur.values(), prev.values())}, nil
}

func (s *Service) CallTrends(ctx context.Context, caller auth.User, q Query) (CallTrends, error) {
	sc, err := s.scope(ctx, caller, q)
	if err != nil {
		return CallTrends{}, err
	}
	cur, err := s.store.CallCounts(ctx, sc)
	if err != nil {
		return CallTrends{}, fmt.Errorf("call counts: %w", err)
	}
	prev, err := s.store.CallCounts(ctx, sc.previous())
	if err != nil {
		return CallTrends{}, fmt.Errorf("previous call counts: %w", err)
	}
	return CallTrends{Trends: trends(cur.values(), prev.values())}, nil
}

func trends(cur, prev map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(cur))
	for k, v := range cur {
		out[k] = Trend(v, prev[k])
	}
	return out
}

// Trend is the percentage change from prev to cur. Growth from zero is
// reported as 100.
func Trend(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / prev * 100
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 or a date with optional time. Values without
// a zone are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// ParseRange parses start and end and requires end not before start.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	var fields []validate.FieldError
	s, err := ParseTime(start)
	if err != nil {
		fields = append(fields, validate.FieldError{Field: "start_date", Rule: "datetime", Message: "must be a valid datetime"})
	}
	e, err := ParseTime(end)
	if err != nil {
		fields = append(fields, validate.FieldError{Field: "end_date", Rule: "datetime", Message: "must be a valid datetime"})
	}
	if len(fields) > 0 {
		return time.Time{}, time.Time{}, &validate.Error{Fields: fields}
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, validate.Fail("end_date", "gtefield", "must not be before start_date")
	}
	return s, e, nil
}

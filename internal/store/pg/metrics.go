package pg

import (
	"context"
	"fmt"

	"salesdeck.io/internal/event"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/reporting"
)

var _ reporting.Store = (*Store)(nil)

// FunnelCounts counts distinct leads per funnel stage from the event log.
func (s *Store) FunnelCounts(ctx context.Context, sc reporting.Scope) (reporting.Funnel, error) {
	var f reporting.Funnel
	err := s.db.QueryRowContext(ctx, `
		select
			count(distinct data->>'lead_id') filter (where name = $4 and data->>'type' = $6),
			count(distinct data->>'lead_id') filter (where name = $5 and data->>'status' = $7),
			count(distinct data->>'lead_id') filter (where name = $5 and data->>'status' = $8),
			count(distinct data->>'lead_id') filter (where name = $5 and data->>'status' = $9),
			count(distinct data->>'lead_id') filter (where name = $5 and data->>'status' = $10),
			count(distinct data->>'lead_id') filter (where name = $5 and data->>'status' = $11),
			count(distinct data->>'lead_id') filter (where name = $5 and data->>'status' = $12)
		from events
		where branch_id = $1 and created_at between $2 and $3
	`, sc.BranchID, sc.Start, sc.End,
		string(event.LeadCreated), string(event.LeadStatusUpdated), string(lead.TypeSuspect),
		string(lead.StatusYetToContact), string(lead.StatusContactedDropped),
		string(lead.StatusFirstMeetingScheduled), string(lead.StatusFirstMeetingCompleted),
		string(lead.StatusSecondMeetingScheduled), string(lead.StatusCallClosed),
	).Scan(&f.LeadCreatedSuspect, &f.LeadStatusYetToContact, &f.LeadStatusContactedDropped,
		&f.FirstMeetingScheduled, &f.FirstMeetingCompleted, &f.SecondMeetingScheduled, &f.CallClosed)
	if err != nil {
		return reporting.Funnel{}, fmt.Errorf("funnel counts: %w", err)
	}
	return f, nil
}

// CallCounts counts started calls by type and sums ended-call minutes.
func (s *Store) CallCounts(ctx context.Context, sc reporting.Scope) (reporting.CallCounts, error) {
	var c reporting.CallCounts
	err := s.db.QueryRowContext(ctx, `
		select
			count(*) filter (where name = $4),
			count(*) filter (where name = $4 and data->>'call_type' = 'appointment_call'),
			count(*) filter (where name = $4 and data->>'call_type' = 'meeting_call'),
			coalesce(sum((data->>'duration_seconds')::numeric) filter (where name = $5), 0)::float8 / 60
		from events
		where branch_id = $1 and created_at between $2 and $3
	`, sc.BranchID, sc.Start, sc.End, string(event.CallStarted), string(event.CallEnded),
	).Scan(&c.CallStarted, &c.AppointmentCall, &c.MeetingCall, &c.DurationMinutes)
	if err != nil {
		return reporting.CallCounts{}, fmt.Errorf("call counts: %w", err)
	}
	return c, nil
}

// CallSeries buckets started calls and ended-call minutes by g.
func (s *Store) CallSeries(ctx context.Context, sc reporting.Scope, g reporting.Granularity) (reporting.Graph, error) {
	var graph reporting.Graph
	rows, err := s.db.QueryContext(ctx, `
		select date_trunc($4, created_at) as bucket, count(*)
		from events
		where branch_id = $1 and name = $5 and created_at between $2 and $3
		group by bucket
		order by bucket
	`, sc.BranchID, sc.Start, sc.End, string(g), string(event.CallStarted))
	if err != nil {
		return graph, fmt.Errorf("call count series: %w", err)
	}
	for rows.Next() {
		var p reporting.CountPoint
		if err := rows.Scan(&p.EventDate, &p.CallCount); err != nil {
			rows.Close()
			return graph, err
		}
		p.EventDate = p.EventDate.UTC()
		graph.CallCount = append(graph.CallCount, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return graph, err
	}

	rows, err = s.db.QueryContext(ctx, `
		select date_trunc($4, created_at) as bucket,
			coalesce(sum((data->>'duration_seconds')::numeric), 0)::float8 / 60
		from events
		where branch_id = $1 and name = $5 and created_at between $2 and $3
		group by bucket
		order by bucket
	`, sc.BranchID, sc.Start, sc.End, string(g), string(event.CallEnded))
	if err != nil {
		return graph, fmt.Errorf("call duration series: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p reporting.DurationPoint
		if err := rows.Scan(&p.EventDate, &p.TotalDurationMinutes); err != nil {
			return graph, err
		}
		p.EventDate = p.EventDate.UTC()
		graph.TotalDurationMinutes = append(graph.TotalDurationMinutes, p)
	}
	return graph, rows.Err()
}

package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"salesdeck.io/internal/call"
)

var _ call.Store = (*Store)(nil)

// CreateSnapshot stores s with the next version for its lead.
func (s *Store) CreateSnapshot(ctx context.Context, snap call.Snapshot) (call.Snapshot, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into profile_snapshots (id, lead_id, branch_id, organization_id, version, data, created_at)
		values ($1, $2, $3, $4,
			(select coalesce(max(version), 0) + 1 from profile_snapshots where lead_id = $2),
			$5, $6)
		returning version
	`, snap.ID, snap.LeadID, snap.BranchID, snap.OrganizationID, string(snap.Data), snap.CreatedAt).Scan(&snap.Version)
	if err != nil {
		return call.Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) CreateCall(ctx context.Context, c call.Call) error {
	meta, err := json.Marshal(orEmptyMap(c.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into calls (id, type, user_id, caller_name, lead_id, profile_snapshot_id, branch_id,
			organization_id, prompt_id, agent_id, call_timestamp, metadata, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, string(c.Type), c.UserID, c.CallerName, c.LeadID, c.ProfileSnapshotID, c.BranchID,
		c.OrganizationID, nullIfEmpty(c.PromptID), c.AgentID, c.CallTimestamp, string(meta), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *Store) AttachPlatformCall(ctx context.Context, callID, platformCallID string) error {
	res, err := s.db.ExecContext(ctx, `
		update calls set platform_call_id = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, callID, platformCallID)
	return affectedOne(res, err)
}

const callColumns = `c.id, c.type, c.user_id, c.caller_name, c.lead_id, c.profile_snapshot_id, c.branch_id,
	c.organization_id, coalesce(c.prompt_id, ''), c.agent_id, coalesce(c.platform_call_id, ''), c.call_timestamp,
	c.metadata, c.transcript, coalesce(c.transcript_key, ''), c.report, c.analytics, c.duration_seconds,
	c.created_at, c.updated_at`

func callDest(c *call.Call, typ *string, meta *[]byte, transcript *sql.NullString, duration *sql.NullInt64) []any {
	return []any{&c.ID, typ, &c.UserID, &c.CallerName, &c.LeadID, &c.ProfileSnapshotID, &c.BranchID,
		&c.OrganizationID, &c.PromptID, &c.AgentID, &c.PlatformCallID, &c.CallTimestamp,
		meta, transcript, &c.TranscriptKey, &c.Report, &c.Analytics, duration,
		&c.CreatedAt, &c.UpdatedAt}
}

func fillCall(c *call.Call, typ string, meta []byte, transcript sql.NullString, duration sql.NullInt64) error {
	c.Type = call.Type(typ)
	c.Transcript = stringPtr(transcript)
	if duration.Valid {
		d := duration.Int64
		c.DurationSeconds = &d
	}
	c.Metadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return fmt.Errorf("decode call metadata %s: %w", c.ID, err)
		}
	}
	return nil
}

func scanCall(row rowScanner) (call.Call, error) {
	var (
		c          call.Call
		typ        string
		meta       []byte
		transcript sql.NullString
		duration   sql.NullInt64
	)
	if err := row.Scan(callDest(&c, &typ, &meta, &transcript, &duration)...); err != nil {
		return call.Call{}, err
	}
	return c, fillCall(&c, typ, meta, transcript, duration)
}

// GetCall loads a call in orgID. A non-empty userID restricts the match to
// calls that user placed.
func (s *Store) GetCall(ctx context.Context, orgID, callID, userID string) (call.Call, error) {
	c, err := scanCall(s.db.QueryRowContext(ctx, `
		select `+callColumns+`
		from calls c
		where c.id = $1 and c.organization_id = $2 and ($3 = '' or c.user_id = $3) and c.deleted_at is null
	`, callID, orgID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return call.Call{}, call.ErrNotFound
	}
	return c, err
}

func (s *Store) ListCalls(ctx context.Context, branchID, userID string) ([]call.WithSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+callColumns+`,
			s.id, s.lead_id, s.branch_id, s.organization_id, s.version, s.data, s.created_at
		from calls c
		join profile_snapshots s on s.id = c.profile_snapshot_id
		where c.branch_id = $1 and ($2 = '' or c.user_id = $2) and c.deleted_at is null
		order by c.created_at desc
	`, branchID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []call.WithSnapshot{}
	for rows.Next() {
		var (
			w          call.WithSnapshot
			typ        string
			meta       []byte
			transcript sql.NullString
			duration   sql.NullInt64
		)
		snap := &w.ProfileSnapshot
		dest := append(callDest(&w.Call, &typ, &meta, &transcript, &duration),
			&snap.ID, &snap.LeadID, &snap.BranchID, &snap.OrganizationID, &snap.Version, &snap.Data, &snap.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if err := fillCall(&w.Call, typ, meta, transcript, duration); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CompleteCall writes the transcript and report and merges the formatted
// duration into the call metadata.
func (s *Store) CompleteCall(ctx context.Context, cp call.Completion) (call.Call, error) {
	report := cp.Report
	if len(report) == 0 {
		report = json.RawMessage(`{}`)
	}
	c, err := scanCall(s.db.QueryRowContext(ctx, `
		update calls c
		set transcript = $2, report = $3, metadata = c.metadata || jsonb_build_object('duration', $4::text),
			duration_seconds = $5, updated_at = $6
		where c.id = $1 and c.deleted_at is null
		returning `+callColumns,
		cp.CallID, cp.Transcript, string(report), cp.Duration, cp.DurationSeconds, cp.CompletedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return call.Call{}, call.ErrNotFound
	}
	return c, err
}

func (s *Store) SetAnalytics(ctx context.Context, callID string, analytics json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		update calls set analytics = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, callID, string(analytics))
	return affectedOne(res, err)
}

func (s *Store) SetTranscriptKey(ctx context.Context, callID, key string) error {
	res, err := s.db.ExecContext(ctx, `
		update calls set transcript_key = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, callID, key)
	return affectedOne(res, err)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return call.ErrNotFound
	}
	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salesdeck.io/internal/lead"
)

var _ lead.Store = (*Store)(nil)

const leadColumns = `l.id, l.branch_id, l.organization_id, l.type, l.status, l.associated_agent,
	l.known_to_agent, l.meeting_date, l.created_by_id, l.created_by_name, l.created_at, l.updated_at,
	p.id, p.data, p.created_at, p.updated_at`

func scanLead(row rowScanner) (lead.View, error) {
	var (
		v                 lead.View
		typ, status       string
		associated, known sql.NullString
		meeting           sql.NullTime
		data              []byte
	)
	err := row.Scan(&v.Lead.ID, &v.Lead.BranchID, &v.Lead.OrganizationID, &typ, &status, &associated,
		&known, &meeting, &v.Lead.CreatedByID, &v.Lead.CreatedByName, &v.Lead.CreatedAt, &v.Lead.UpdatedAt,
		&v.Profile.ID, &data, &v.Profile.CreatedAt, &v.Profile.UpdatedAt)
	if err != nil {
		return lead.View{}, err
	}
	v.Lead.Type = lead.Type(typ)
	v.Lead.Status = lead.Status(status)
	v.Lead.AssociatedAgent = stringPtr(associated)
	v.Lead.KnownToAgent = stringPtr(known)
	v.Lead.MeetingDate = timePtr(meeting)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v.Profile.Profile); err != nil {
			return lead.View{}, fmt.Errorf("decode profile %s: %w", v.Profile.ID, err)
		}
	}
	v.Profile.LeadID = v.Lead.ID
	v.Profile.BranchID = v.Lead.BranchID
	v.Profile.OrganizationID = v.Lead.OrganizationID
	return v, nil
}

// CreateLead stores the lead, its profile and its voice agent together.
func (s *Store) CreateLead(ctx context.Context, l lead.Lead, p lead.ProfileRecord, a lead.Agent) error {
	data, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into leads (id, branch_id, organization_id, type, status, associated_agent, known_to_agent,
				meeting_date, created_by_id, created_by_name, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, l.ID, l.BranchID, l.OrganizationID, string(l.Type), string(l.Status), nullString(l.AssociatedAgent),
			nullString(l.KnownToAgent), nullTime(l.MeetingDate), l.CreatedByID, l.CreatedByName,
			l.CreatedAt, l.UpdatedAt); err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into lead_profiles (id, lead_id, branch_id, organization_id, data, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, l.ID, p.BranchID, p.OrganizationID, string(data), p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into agents (id, lead_id, organization_id, branch_id, llm_id, platform_agent_id, created_at)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, l.ID, a.OrganizationID, a.BranchID, a.LLMID, a.PlatformAgentID, a.CreatedAt); err != nil {
			return fmt.Errorf("insert agent: %w", err)
		}
		return nil
	})
}

// GetLead loads a lead in orgID. A non-empty createdBy restricts the match
// to leads that user created.
func (s *Store) GetLead(ctx context.Context, orgID, leadID, createdBy string) (lead.View, error) {
	v, err := scanLead(s.db.QueryRowContext(ctx, `
		select `+leadColumns+`
		from leads l
		join lead_profiles p on p.lead_id = l.id and p.deleted_at is null
		where l.id = $1 and l.organization_id = $2 and ($3 = '' or l.created_by_id = $3)
			and l.deleted_at is null
	`, leadID, orgID, createdBy))
	if errors.Is(err, sql.ErrNoRows) {
		return lead.View{}, lead.ErrNotFound
	}
	return v, err
}

func (s *Store) ListLeads(ctx context.Context, branchID, createdBy string) ([]lead.View, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+leadColumns+`
		from leads l
		join lead_profiles p on p.lead_id = l.id and p.deleted_at is null
		where l.branch_id = $1 and ($2 = '' or l.created_by_id = $2) and l.deleted_at is null
		order by l.created_at desc
	`, branchID, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []lead.View{}
	for rows.Next() {
		v, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLead(ctx context.Context, v lead.View) error {
	data, err := json.Marshal(v.Profile.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update leads
			set type = $2, status = $3, associated_agent = $4, known_to_agent = $5, meeting_date = $6,
				updated_at = $7
			where id = $1 and deleted_at is null
		`, v.Lead.ID, string(v.Lead.Type), string(v.Lead.Status), nullString(v.Lead.AssociatedAgent),
			nullString(v.Lead.KnownToAgent), nullTime(v.Lead.MeetingDate), v.Lead.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return lead.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `
			update lead_profiles set data = $2, updated_at = $3
			where lead_id = $1 and deleted_at is null
		`, v.Lead.ID, string(data), v.Profile.UpdatedAt); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
}

// SoftDeleteLead marks the lead and its profile deleted. It reports false
// when no visible lead matched.
func (s *Store) SoftDeleteLead(ctx context.Context, orgID, leadID, createdBy string, at time.Time) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update leads set deleted_at = $4, updated_at = $4
			where id = $1 and organization_id = $2 and ($3 = '' or created_by_id = $3) and deleted_at is null
		`, leadID, orgID, createdBy, at)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			update lead_profiles set deleted_at = $2, updated_at = $2
			where lead_id = $1 and deleted_at is null
		`, leadID, at); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *Store) GetAgent(ctx context.Context, leadID string) (lead.Agent, error) {
	var a lead.Agent
	err := s.db.QueryRowContext(ctx, `
		select id, lead_id, organization_id, branch_id, llm_id, platform_agent_id, created_at
		from agents
		where lead_id = $1
	`, leadID).Scan(&a.ID, &a.LeadID, &a.OrganizationID, &a.BranchID, &a.LLMID, &a.PlatformAgentID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lead.Agent{}, lead.ErrAgentNotFound
	}
	return a, err
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/prompt"
)

var _ prompt.Store = (*Store)(nil)

const promptColumns = `id, name, text, description, organization_id, branch_id, known_to_agent, meeting_status,
	prompt_type, report_prompt_text, created_by, created_by_name, created_at, updated_at`

func scanPrompt(row rowScanner) (prompt.Prompt, error) {
	var (
		p                     prompt.Prompt
		known, status, report sql.NullString
		typ                   string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Text, &p.Description, &p.OrganizationID, &p.BranchID, &known, &status,
		&typ, &report, &p.CreatedBy, &p.CreatedByName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return prompt.Prompt{}, err
	}
	p.KnownToAgent = stringPtr(known)
	p.ReportPromptText = stringPtr(report)
	p.PromptType = prompt.Type(typ)
	if status.Valid {
		ms := lead.Status(status.String)
		p.MeetingStatus = &ms
	}
	return p, nil
}

func meetingStatus(s *lead.Status) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func (s *Store) CreatePrompt(ctx context.Context, p prompt.Prompt) error {
	_, err := s.db.ExecContext(ctx, `
		insert into prompts (id, name, text, description, organization_id, branch_id, known_to_agent,
			meeting_status, prompt_type, report_prompt_text, created_by, created_by_name, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.Name, p.Text, p.Description, p.OrganizationID, p.BranchID, nullString(p.KnownToAgent),
		meetingStatus(p.MeetingStatus), string(p.PromptType), nullString(p.ReportPromptText), p.CreatedBy,
		p.CreatedByName, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

func (s *Store) GetPrompt(ctx context.Context, orgID, id string) (prompt.Prompt, error) {
	p, err := scanPrompt(s.db.QueryRowContext(ctx, `
		select `+promptColumns+`
		from prompts
		where id = $1 and organization_id = $2 and deleted_at is null
	`, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return prompt.Prompt{}, prompt.ErrNotFound
	}
	return p, err
}

func (s *Store) ListPrompts(ctx context.Context, branchID string) ([]prompt.Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+promptColumns+`
		from prompts
		where branch_id = $1 and deleted_at is null
		order by created_at desc
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []prompt.Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePrompt(ctx context.Context, p prompt.Prompt) error {
	res, err := s.db.ExecContext(ctx, `
		update prompts
		set name = $2, text = $3, description = $4, known_to_agent = $5, meeting_status = $6,
			report_prompt_text = $7, updated_at = $8
		where id = $1 and deleted_at is null
	`, p.ID, p.Name, p.Text, p.Description, nullString(p.KnownToAgent), meetingStatus(p.MeetingStatus),
		nullString(p.ReportPromptText), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return prompt.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeletePrompt(ctx context.Context, orgID, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update prompts set deleted_at = $3, updated_at = $3
		where id = $1 and organization_id = $2 and deleted_at is null
	`, id, orgID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

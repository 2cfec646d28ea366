package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/org"
)

var _ org.Store = (*Store)(nil)

func (s *Store) GetOrganization(ctx context.Context, id string) (org.Organization, error) {
	var o org.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from organizations
		where id = $1 and deleted_at is null
	`, id).Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return org.Organization{}, org.ErrOrganizationNotFound
	}
	return o, err
}

// CreateBranch inserts the branch, enrolls its creator and makes it the
// creator's current branch.
func (s *Store) CreateBranch(ctx context.Context, b org.Branch) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into branches (id, organization_id, name, created_by, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6)
		`, b.ID, b.OrganizationID, b.Name, b.CreatedBy, b.CreatedAt, b.UpdatedAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return org.ErrOrganizationNotFound
			}
			return fmt.Errorf("insert branch: %w", err)
		}
		if b.CreatedBy == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			insert into branch_members (user_id, branch_id, created_at)
			values ($1, $2, $3)
			on conflict (user_id, branch_id) do nothing
		`, b.CreatedBy, b.ID, b.CreatedAt); err != nil {
			return fmt.Errorf("add creator membership: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			update users set current_branch_id = $2, updated_at = $3
			where id = $1
		`, b.CreatedBy, b.ID, b.CreatedAt); err != nil {
			return fmt.Errorf("switch current branch: %w", err)
		}
		return nil
	})
}

const branchColumns = `id, organization_id, name, created_by, created_at, updated_at`

func scanBranch(row rowScanner) (org.Branch, error) {
	var b org.Branch
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *Store) GetBranch(ctx context.Context, id string) (org.Branch, error) {
	b, err := scanBranch(s.db.QueryRowContext(ctx, `
		select `+branchColumns+`
		from branches
		where id = $1 and deleted_at is null
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return org.Branch{}, org.ErrBranchNotFound
	}
	return b, err
}

func (s *Store) ListBranches(ctx context.Context, orgID string) ([]org.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+branchColumns+`
		from branches
		where organization_id = $1 and deleted_at is null
		order by created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []org.Branch{}
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListMembers returns the users whose current branch is branchID.
func (s *Store) ListMembers(ctx context.Context, branchID string) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where current_branch_id = $1 and deleted_at is null
		order by created_at
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const inviteColumns = `i.id, i.token, i.email, i.name, i.organization_id, i.organization_name, i.branch_id,
	i.role, i.status, i.invited_by, i.created_at, i.updated_at, i.accepted_at`

func scanInvite(row rowScanner) (org.Invite, error) {
	var (
		inv          org.Invite
		role, status string
		acceptedAt   sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.Token, &inv.Email, &inv.Name, &inv.OrganizationID, &inv.OrganizationName,
		&inv.BranchID, &role, &status, &inv.InvitedBy, &inv.CreatedAt, &inv.UpdatedAt, &acceptedAt)
	inv.Role = auth.Role(role)
	inv.Status = org.InviteStatus(status)
	inv.AcceptedAt = timePtr(acceptedAt)
	return inv, err
}

func (s *Store) ListInvites(ctx context.Context, branchID string) ([]org.Invite, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+inviteColumns+`
		from invites i
		where i.branch_id = $1 and i.deleted_at is null
		order by i.created_at desc
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []org.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// FindInvite returns the newest invite for email into the branch.
func (s *Store) FindInvite(ctx context.Context, orgID, branchID, email string) (org.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, `
		select `+inviteColumns+`
		from invites i
		where i.organization_id = $1 and i.branch_id = $2 and i.email = $3 and i.deleted_at is null
		order by i.created_at desc
		limit 1
	`, orgID, branchID, strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return org.Invite{}, org.ErrInviteNotFound
	}
	return inv, err
}

func (s *Store) GetInviteByToken(ctx context.Context, token string) (org.Invite, error) {
	inv, err := scanInvite(s.db.QueryRowContext(ctx, `
		select `+inviteColumns+`
		from invites i
		where i.token = $1 and i.deleted_at is null
	`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return org.Invite{}, org.ErrInviteNotFound
	}
	return inv, err
}

func (s *Store) CreateInvite(ctx context.Context, inv org.Invite) error {
	_, err := s.db.ExecContext(ctx, `
		insert into invites (id, token, email, name, organization_id, organization_name, branch_id,
			role, status, invited_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, inv.ID, inv.Token, strings.ToLower(strings.TrimSpace(inv.Email)), inv.Name, inv.OrganizationID,
		inv.OrganizationName, inv.BranchID, string(inv.Role), string(inv.Status), inv.InvitedBy,
		inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, orgID, userID string, active bool) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users
		set is_active = $3, updated_at = now()
		where organization_id = $1 and id = $2 and deleted_at is null
		returning `+userColumns, orgID, userID, active))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, org.ErrMemberNotFound
	}
	return u, err
}

// ExpireInvites flips pending invites created before the cutoff to expired.
func (s *Store) ExpireInvites(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update invites
		set status = 'expired', updated_at = now()
		where status = 'pending' and created_at < $1 and deleted_at is null
	`, createdBefore)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

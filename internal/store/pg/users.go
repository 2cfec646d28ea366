package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesdeck.io/internal/account"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/org"
)

var (
	_ auth.UserFinder = (*Store)(nil)
	_ account.Store   = (*Store)(nil)
)

const userColumns = `id, email, password_hash, full_name, coalesce(designation, ''), organization_id,
	coalesce(current_branch_id, ''), role, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Designation, &u.OrganizationID,
		&u.CurrentBranchID, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	u.Role = auth.Role(role)
	return u, err
}

func (s *Store) FindUserByID(ctx context.Context, id string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and deleted_at is null
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = $1 and deleted_at is null
	`, strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, err
}

func insertUser(ctx context.Context, tx *sql.Tx, u auth.User) error {
	if !u.Role.Valid() {
		return fmt.Errorf("insert user: unknown role %q", u.Role)
	}
	_, err := tx.ExecContext(ctx, `
		insert into users (id, email, password_hash, full_name, designation, organization_id,
			current_branch_id, role, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, nullIfEmpty(u.Designation), u.OrganizationID,
		nullIfEmpty(u.CurrentBranchID), string(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return auth.ErrEmailTaken
	}
	return err
}

func (s *Store) CreateOrganizationWithAdmin(ctx context.Context, o org.Organization, admin auth.User) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into organizations (id, name, created_at, updated_at)
			values ($1, $2, $3, $4)
		`, o.ID, o.Name, o.CreatedAt, o.UpdatedAt); err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}
		return insertUser(ctx, tx, admin)
	})
}

func (s *Store) CreateInvitedMember(ctx context.Context, u auth.User, inv org.Invite, acceptedAt time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, u); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into branch_members (user_id, branch_id, created_at)
			values ($1, $2, $3)
			on conflict (user_id, branch_id) do update set deleted_at = null
		`, u.ID, inv.BranchID, acceptedAt); err != nil {
			return fmt.Errorf("add membership: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			update invites
			set status = 'accepted', accepted_at = $2, updated_at = $2
			where id = $1 and status = 'pending'
		`, inv.ID, acceptedAt)
		if err != nil {
			return fmt.Errorf("accept invite: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return org.ErrInviteNotPending
		}
		return nil
	})
}

func (s *Store) IsMemberByEmail(ctx context.Context, branchID, email string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from users u
			join branch_members m on m.user_id = u.id
			where m.branch_id = $1 and u.email = $2
				and u.deleted_at is null and m.deleted_at is null
		)
	`, branchID, strings.ToLower(strings.TrimSpace(email))).Scan(&ok)
	return ok, err
}

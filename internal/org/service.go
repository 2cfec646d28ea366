package org

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/ids"
)

// Store is the persistence the organization service needs.
type Store interface {
	GetOrganization(ctx context.Context, id string) (Organization, error)
	CreateBranch(ctx context.Context, b Branch) error
	GetBranch(ctx context.Context, id string) (Branch, error)
	ListBranches(ctx context.Context, orgID string) ([]Branch, error)
	ListMembers(ctx context.Context, branchID string) ([]auth.User, error)
	IsMemberByEmail(ctx context.Context, branchID, email string) (bool, error)
	ListInvites(ctx context.Context, branchID string) ([]Invite, error)
	FindInvite(ctx context.Context, orgID, branchID, email string) (Invite, error)
	CreateInvite(ctx context.Context, inv Invite) error
	SetUserActive(ctx context.Context, orgID, userID string, active bool) (auth.User, error)
	ExpireInvites(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Service manages branches, members and invites inside an organization.
type Service struct {
	store     Store
	inviteTTL time.Duration
	now       func() time.Time
}

func NewService(store Store, inviteTTL time.Duration) *Service {
	return &Service{store: store, inviteTTL: inviteTTL, now: time.Now}
}

// BranchFor loads branchID and checks it belongs to the caller's
// organization. A foreign branch reports ErrBranchNotFound.
func (s *Service) BranchFor(ctx context.Context, caller auth.User, branchID string) (Branch, error) {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return Branch{}, ErrBranchNotFound
	}
	b, err := s.store.GetBranch(ctx, branchID)
	if err != nil {
		return Branch{}, err
	}
	if b.OrganizationID != caller.OrganizationID {
		return Branch{}, ErrBranchNotFound
	}
	return b, nil
}

// CreateBranch adds a branch to the caller's organization, makes the caller
// a member and switches the caller's current branch to it.
func (s *Service) CreateBranch(ctx context.Context, caller auth.User, name string) (Branch, error) {
	now := s.now().UTC()
	b := Branch{
		ID:             ids.New(ids.Branch),
		OrganizationID: caller.OrganizationID,
		Name:           strings.TrimSpace(name),
		CreatedBy:      caller.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateBranch(ctx, b); err != nil {
		return Branch{}, fmt.Errorf("create branch: %w", err)
	}
	return b, nil
}

func (s *Service) ListBranches(ctx context.Context, caller auth.User) ([]Branch, error) {
	return s.store.ListBranches(ctx, caller.OrganizationID)
}

// Members lists the users whose current branch is branchID.
func (s *Service) Members(ctx context.Context, caller auth.User, branchID string) ([]auth.User, error) {
	if _, err := s.BranchFor(ctx, caller, branchID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, branchID)
}

func (s *Service) Invites(ctx context.Context, caller auth.User, branchID string) ([]Invite, error) {
	if _, err := s.BranchFor(ctx, caller, branchID); err != nil {
		return nil, err
	}
	return s.store.ListInvites(ctx, branchID)
}

// Invite creates a pending manager invite for email, or returns the invite
// that already exists for the same email and branch.
func (s *Service) Invite(ctx context.Context, caller auth.User, branchID, email, name string) (Invite, error) {
	branch, err := s.BranchFor(ctx, caller, branchID)
	if err != nil {
		return Invite{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	member, err := s.store.IsMemberByEmail(ctx, branch.ID, email)
	if err != nil {
		return Invite{}, err
	}
	if member {
		return Invite{}, ErrAlreadyMember
	}

	existing, err := s.store.FindInvite(ctx, branch.OrganizationID, branch.ID, email)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrInviteNotFound):
		return Invite{}, err
	}

	organization, err := s.store.GetOrganization(ctx, branch.OrganizationID)
	if err != nil {
		return Invite{}, err
	}
	now := s.now().UTC()
	inv := Invite{
		ID:               ids.New(ids.Invite),
		Token:            uuid.NewString(),
		Email:            email,
		Name:             strings.TrimSpace(name),
		OrganizationID:   organization.ID,
		OrganizationName: organization.Name,
		BranchID:         branch.ID,
		Role:             auth.RoleManager,
		Status:           InvitePending,
		InvitedBy:        caller.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return Invite{}, fmt.Errorf("create invite: %w", err)
	}
	return inv, nil
}

// SetMemberAccess activates or deactivates a member. Only an admin working
// in branchID may change someone else's access.
func (s *Service) SetMemberAccess(ctx context.Context, caller auth.User, branchID, memberID string, active bool) (auth.User, error) {
	if _, err := s.BranchFor(ctx, caller, branchID); err != nil {
		return auth.User{}, err
	}
	if !caller.IsAdmin() || caller.CurrentBranchID != branchID || caller.ID == memberID {
		return auth.User{}, ErrAccessDenied
	}
	return s.store.SetUserActive(ctx, caller.OrganizationID, memberID, active)
}

// ExpireStale moves pending invites older than the configured TTL to
// expired and returns how many changed.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	if s.inviteTTL <= 0 {
		return 0, nil
	}
	return s.store.ExpireInvites(ctx, s.now().UTC().Add(-s.inviteTTL))
}

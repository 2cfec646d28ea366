package org

import (
	"errors"
	"time"

	"salesdeck.io/internal/auth"
)

var (
	ErrOrganizationNotFound = errors.New("org: organization not found")
	ErrBranchNotFound       = errors.New("org: branch not found")
	ErrInviteNotFound       = errors.New("org: invite not found")
	ErrInviteNotPending     = errors.New("org: invite is not pending")
	ErrAlreadyMember        = errors.New("org: user is already a branch member")
	ErrMemberNotFound       = errors.New("org: member not found")
	ErrAccessDenied         = errors.New("org: caller may not modify member access")
)

// Organization is a tenant.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Branch is a unit inside an organization that owns leads, prompts and calls.
type Branch struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InviteStatus tracks an invite through its lifecycle.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteExpired  InviteStatus = "expired"
)

// Invite lets a new user join a branch as a manager.
type Invite struct {
	ID               string       `json:"id"`
	Token            string       `json:"token"`
	Email            string       `json:"email"`
	Name             string       `json:"name"`
	OrganizationID   string       `json:"organization_id"`
	OrganizationName string       `json:"organization_name"`
	BranchID         string       `json:"branch_id"`
	Role             auth.Role    `json:"role"`
	Status           InviteStatus `json:"status"`
	InvitedBy        string       `json:"invited_by"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	AcceptedAt       *time.Time   `json:"accepted_at,omitempty"`
}

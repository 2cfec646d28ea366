// Package account handles registration, login and the current-user view.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesdeck.io/internal/audit"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/ids"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
)

var (
	ErrBadCredentials = errors.New("account: incorrect email or password")
	ErrDeactivated    = errors.New("account: user is deactivated")
)

// Store is the persistence registration and login need.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (auth.User, error)
	GetInviteByToken(ctx context.Context, token string) (org.Invite, error)
	IsMemberByEmail(ctx context.Context, branchID, email string) (bool, error)
	// CreateOrganizationWithAdmin inserts the organization and its first user.
	CreateOrganizationWithAdmin(ctx context.Context, o org.Organization, admin auth.User) error
	// CreateInvitedMember inserts u, adds the branch membership, sets the
	// current branch and marks the invite accepted in one transaction.
	CreateInvitedMember(ctx context.Context, u auth.User, inv org.Invite, acceptedAt time.Time) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	IssueFor(user auth.User, ttl time.Duration) (string, error)
}

// RegisterRequest is the registration body.
type RegisterRequest struct {
	FullName         string `json:"full_name" validate:"required"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8"`
	OrganizationName string `json:"organization_name"`
	InviteToken      string `json:"invite_token"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Token is the response body of register and login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Service struct {
	store      Store
	tokens     TokenIssuer
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewService(store Store, tokens TokenIssuer, ttl time.Duration, bcryptCost int) *Service {
	return &Service{store: store, tokens: tokens, ttl: ttl, bcryptCost: bcryptCost, now: time.Now}
}

// Register creates a user. With an invite token the user joins the invite's
// branch as a manager; otherwise a new organization is created with the user
// as its admin.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Token, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	req.InviteToken = strings.TrimSpace(req.InviteToken)
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)

	var (
		user auth.User
		err  error
	)
	if req.InviteToken != "" {
		user, err = s.registerInvited(ctx, req)
	} else {
		user, err = s.registerOwner(ctx, req)
	}
	if err != nil {
		return Token{}, err
	}

	_ = audit.LogEvent(ctx, audit.EventRegister, map[string]any{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
		"role":            string(user.Role),
		"invited":         req.InviteToken != "",
	})
	return s.issue(user)
}

func (s *Service) registerInvited(ctx context.Context, req RegisterRequest) (auth.User, error) {
	if err := validate.Struct(req); err != nil {
		return auth.User{}, err
	}
	inv, err := s.store.GetInviteByToken(ctx, req.InviteToken)
	if err != nil {
		return auth.User{}, err
	}
	if inv.Status != org.InvitePending {
		return auth.User{}, org.ErrInviteNotPending
	}
	member, err := s.store.IsMemberByEmail(ctx, inv.BranchID, inv.Email)
	if err != nil {
		return auth.User{}, err
	}
	if member {
		return auth.User{}, org.ErrAlreadyMember
	}
	if err := s.ensureEmailFree(ctx, inv.Email); err != nil {
		return auth.User{}, err
	}

	name := inv.Name
	if name == "" {
		name = req.FullName
	}
	user, err := s.newUser(inv.Email, name, req.Password, inv.OrganizationID, auth.RoleManager)
	if err != nil {
		return auth.User{}, err
	}
	user.CurrentBranchID = inv.BranchID
	if err := s.store.CreateInvitedMember(ctx, user, inv, user.CreatedAt); err != nil {
		return auth.User{}, fmt.Errorf("register invited member: %w", err)
	}
	return user, nil
}

func (s *Service) registerOwner(ctx context.Context, req RegisterRequest) (auth.User, error) {
	if err := validate.Struct(req); err != nil {
		return auth.User{}, err
	}
	if req.OrganizationName == "" {
		return auth.User{}, validate.Fail("organization_name", "required", "organization_name is required")
	}
	if err := s.ensureEmailFree(ctx, req.Email); err != nil {
		return auth.User{}, err
	}

	now := s.now().UTC()
	o := org.Organization{
		ID:        ids.New(ids.Organization),
		Name:      req.OrganizationName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user, err := s.newUser(req.Email, req.FullName, req.Password, o.ID, auth.RoleAdmin)
	if err != nil {
		return auth.User{}, err
	}
	if err := s.store.CreateOrganizationWithAdmin(ctx, o, user); err != nil {
		return auth.User{}, fmt.Errorf("register organization: %w", err)
	}
	return user, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.store.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		return auth.ErrEmailTaken
	case errors.Is(err, auth.ErrUserNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) newUser(email, name, password, orgID string, role auth.Role) (auth.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return auth.User{}, err
	}
	now := s.now().UTC()
	return auth.User{
		ID:             ids.New(ids.User),
		Email:          email,
		PasswordHash:   hash,
		FullName:       name,
		OrganizationID: orgID,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Login checks credentials and issues a token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Token, error) {
	if err := validate.Struct(req); err != nil {
		return Token{}, err
	}
	user, err := s.store.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return Token{}, ErrBadCredentials
		}
		return Token{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return Token{}, ErrBadCredentials
	}
	if !user.IsActive {
		return Token{}, ErrDeactivated
	}
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
	})
	return s.issue(user)
}

func (s *Service) issue(user auth.User) (Token, error) {
	token, err := s.tokens.IssueFor(user, s.ttl)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: token, TokenType: "bearer"}, nil
}

// Package prompt stores the conversation prompts managers pick when they
// start a practice call.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesdeck.io/internal/audit"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/ids"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
)

var ErrNotFound = errors.New("prompt: not found")

type Type string

const TypeConversation Type = "conversation"

// Prompt is a reusable call script.
type Prompt struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Text             string       `json:"text"`
	Description      string       `json:"description"`
	OrganizationID   string       `json:"organization_id"`
	BranchID         string       `json:"branch_id"`
	KnownToAgent     *string      `json:"known_to_agent"`
	MeetingStatus    *lead.Status `json:"meeting_status"`
	PromptType       Type         `json:"prompt_type"`
	ReportPromptText *string      `json:"report_prompt_text"`
	CreatedBy        string       `json:"created_by"`
	CreatedByName    string       `json:"created_by_name"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Store persists prompts. Lookups are scoped to an organization and skip
// soft-deleted rows.
type Store interface {
	CreatePrompt(ctx context.Context, p Prompt) error
	GetPrompt(ctx context.Context, orgID, id string) (Prompt, error)
	ListPrompts(ctx context.Context, branchID string) ([]Prompt, error)
	UpdatePrompt(ctx context.Context, p Prompt) error
	SoftDeletePrompt(ctx context.Context, orgID, id string, at time.Time) (bool, error)
}

type BranchResolver interface {
	BranchFor(ctx context.Context, caller auth.User, branchID string) (org.Branch, error)
}

type CreateRequest struct {
	Name             string       `json:"name" validate:"required"`
	Text             string       `json:"text" validate:"required"`
	Description      string       `json:"description"`
	BranchID         string       `json:"branch_id" validate:"required"`
	KnownToAgent     *string      `json:"known_to_agent"`
	MeetingStatus    *lead.Status `json:"meeting_status"`
	PromptType       Type         `json:"prompt_type"`
	ReportPromptText *string      `json:"report_prompt_text"`
}

// UpdateRequest lists the only mutable fields. Anything else in the body
// is dropped by the decoder.
type UpdateRequest struct {
	Name             *string      `json:"name"`
	Text             *string      `json:"text"`
	Description      *string      `json:"description"`
	KnownToAgent     *string      `json:"known_to_agent"`
	MeetingStatus    *lead.Status `json:"meeting_status"`
	ReportPromptText *string      `json:"report_prompt_text"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type Service struct {
	store    Store
	branches BranchResolver
	now      func() time.Time
}

func NewService(store Store, branches BranchResolver) *Service {
	return &Service{store: store, branches: branches, now: time.Now}
}

func (s *Service) Create(ctx context.Context, caller auth.User, req CreateRequest) (Prompt, error) {
	if err := validate.Struct(req); err != nil {
		return Prompt{}, err
	}
	if req.PromptType == "" {
		req.PromptType = TypeConversation
	}
	if req.PromptType != TypeConversation {
		return Prompt{}, validate.Fail("prompt_type", "oneof", "must be one of: conversation")
	}
	if err := checkStatus(req.MeetingStatus); err != nil {
		return Prompt{}, err
	}
	branch, err := s.branches.BranchFor(ctx, caller, req.BranchID)
	if err != nil {
		return Prompt{}, err
	}
	now := s.now().UTC()
	p := Prompt{
		ID:               ids.New(ids.Prompt),
		Name:             strings.TrimSpace(req.Name),
		Text:             req.Text,
		Description:      req.Description,
		OrganizationID:   branch.OrganizationID,
		BranchID:         branch.ID,
		KnownToAgent:     req.KnownToAgent,
		MeetingStatus:    req.MeetingStatus,
		PromptType:       req.PromptType,
		ReportPromptText: req.ReportPromptText,
		CreatedBy:        caller.ID,
		CreatedByName:    caller.FullName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreatePrompt(ctx, p); err != nil {
		return Prompt{}, fmt.Errorf("create prompt: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, caller auth.User, branchID string) ([]Prompt, error) {
	if _, err := s.branches.BranchFor(ctx, caller, branchID); err != nil {
		return nil, err
	}
	return s.store.ListPrompts(ctx, branchID)
}

func (s *Service) Get(ctx context.Context, caller auth.User, id string) (Prompt, error) {
	return s.store.GetPrompt(ctx, caller.OrganizationID, id)
}

func (s *Service) Update(ctx context.Context, caller auth.User, id string, req UpdateRequest) (Prompt, error) {
	p, err := s.Get(ctx, caller, id)
	if err != nil {
		return Prompt{}, err
	}
	if err := checkStatus(req.MeetingStatus); err != nil {
		return Prompt{}, err
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Text != nil {
		p.Text = *req.Text
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.KnownToAgent != nil {
		p.KnownToAgent = req.KnownToAgent
	}
	if req.MeetingStatus != nil {
		p.MeetingStatus = req.MeetingStatus
	}
	if req.ReportPromptText != nil {
		p.ReportPromptText = req.ReportPromptText
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePrompt(ctx, p); err != nil {
		return Prompt{}, fmt.Errorf("update prompt: %w", err)
	}
	return p, nil
}

// Delete soft-deletes a prompt. Deleted is false when nothing matched.
func (s *Service) Delete(ctx context.Context, caller auth.User, id string) (DeleteResult, error) {
	ok, err := s.store.SoftDeletePrompt(ctx, caller.OrganizationID, id, s.now().UTC())
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete prompt: %w", err)
	}
	if ok {
		_ = audit.LogEvent(ctx, audit.EventPromptDelete, map[string]any{"prompt_id": id})
	}
	return DeleteResult{ID: id, Deleted: ok}, nil
}

func checkStatus(s *lead.Status) error {
	if s != nil && !s.Valid() {
		return validate.Fail("meeting_status", "oneof", "must be a known lead status")
	}
	return nil
}

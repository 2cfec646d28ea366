// Package call starts practice calls against lead voice agents and folds
// the platform's post-call webhooks back into stored reports.
package call

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesdeck.io/internal/archive"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/event"
	"salesdeck.io/internal/ids"
	"salesdeck.io/internal/idempotency"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/llm"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/prompt"
	"salesdeck.io/internal/validate"
	"salesdeck.io/internal/voice"
)

// Store persists calls and snapshots. userID narrows lookups to one caller;
// empty matches everyone.
type Store interface {
	CreateSnapshot(ctx context.Context, s Snapshot) (Snapshot, error)
	CreateCall(ctx context.Context, c Call) error
	AttachPlatformCall(ctx context.Context, callID, platformCallID string) error
	GetCall(ctx context.Context, orgID, callID, userID string) (Call, error)
	ListCalls(ctx context.Context, branchID, userID string) ([]WithSnapshot, error)
	CompleteCall(ctx context.Context, c Completion) (Call, error)
	SetAnalytics(ctx context.Context, callID string, analytics json.RawMessage) error
	SetTranscriptKey(ctx context.Context, callID, key string) error
}

// Leads resolves the lead and voice agent a call targets.
type Leads interface {
	Find(ctx context.Context, orgID, leadID string) (lead.View, error)
	Agent(ctx context.Context, leadID string) (lead.Agent, error)
}

type Prompts interface {
	Get(ctx context.Context, caller auth.User, id string) (prompt.Prompt, error)
}

type BranchResolver interface {
	BranchFor(ctx context.Context, caller auth.User, branchID string) (org.Branch, error)
}

// Archiver keeps a durable copy of finished transcripts.
type Archiver interface {
	Put(ctx context.Context, t archive.Transcript) (string, error)
}

type StartRequest struct {
	LeadID   string `json:"lead_id" validate:"required"`
	PromptID string `json:"prompt_id" validate:"required"`
	CallType Type   `json:"call_type" validate:"required"`
}

// Deps groups the collaborators of a Service. Archive may be nil.
type Deps struct {
	Store     Store
	Leads     Leads
	Prompts   Prompts
	Branches  BranchResolver
	Platform  voice.Platform
	Events    event.Recorder
	Reporter  llm.Reporter
	Dedupe    idempotency.Claimer
	DedupeTTL time.Duration
	Archive   Archiver
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.DedupeTTL <= 0 {
		deps.DedupeTTL = 24 * time.Hour
	}
	if deps.Dedupe == nil {
		deps.Dedupe = idempotency.NewMemory()
	}
	return &Service{Deps: deps, now: time.Now}
}

func ownerFilter(caller auth.User) string {
	if caller.IsAdmin() {
		return ""
	}
	return caller.ID
}

// Start snapshots the lead, records the call and registers it with the
// voice platform.
func (s *Service) Start(ctx context.Context, caller auth.User, req StartRequest) (voice.Registration, error) {
	if err := validate.Struct(req); err != nil {
		return voice.Registration{}, err
	}
	if !req.CallType.Valid() {
		return voice.Registration{}, validate.Fail("call_type", "oneof", "must be one of: appointment_call meeting_call")
	}
	v, err := s.Leads.Find(ctx, caller.OrganizationID, req.LeadID)
	if err != nil {
		return voice.Registration{}, err
	}
	agent, err := s.Leads.Agent(ctx, v.Lead.ID)
	if err != nil {
		return voice.Registration{}, err
	}
	p, err := s.Prompts.Get(ctx, caller, req.PromptID)
	if err != nil {
		return voice.Registration{}, err
	}

	persona, err := json.Marshal(v.Profile)
	if err != nil {
		return voice.Registration{}, fmt.Errorf("encode persona: %w", err)
	}
	data, err := json.Marshal(map[string]any{"lead": v.Lead, "profile": v.Profile})
	if err != nil {
		return voice.Registration{}, fmt.Errorf("encode snapshot: %w", err)
	}

	now := s.now().UTC()
	snap, err := s.Store.CreateSnapshot(ctx, Snapshot{
		ID:             ids.New(ids.Snapshot),
		LeadID:         v.Lead.ID,
		BranchID:       v.Lead.BranchID,
		OrganizationID: v.Lead.OrganizationID,
		Data:           data,
		CreatedAt:      now,
	})
	if err != nil {
		return voice.Registration{}, fmt.Errorf("snapshot lead: %w", err)
	}

	c := Call{
		ID:                ids.New(ids.Call),
		Type:              req.CallType,
		UserID:            caller.ID,
		CallerName:        caller.FullName,
		LeadID:            v.Lead.ID,
		ProfileSnapshotID: snap.ID,
		BranchID:          v.Lead.BranchID,
		OrganizationID:    caller.OrganizationID,
		PromptID:          p.ID,
		AgentID:           agent.ID,
		CallTimestamp:     now,
		Metadata:          map[string]any{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.Store.CreateCall(ctx, c); err != nil {
		return voice.Registration{}, fmt.Errorf("create call: %w", err)
	}

	metadata := map[string]any{
		"user_id":             caller.ID,
		"lead_id":             v.Lead.ID,
		"prompt_id":           p.ID,
		"profile_snapshot_id": snap.ID,
		"retell_agent_id":     agent.PlatformAgentID,
		"call_id":             c.ID,
		"lead_type":           string(v.Lead.Type),
		"lead_status":         string(v.Lead.Status),
		"call_type":           string(req.CallType),
		"branch_id":           c.BranchID,
		"org_id":              c.OrganizationID,
	}
	if p.ReportPromptText != nil {
		metadata["report_prompt"] = *p.ReportPromptText
	}
	reg, err := s.Platform.RegisterCall(ctx, voice.CallRequest{
		AgentID:          agent.PlatformAgentID,
		Metadata:         metadata,
		DynamicVariables: map[string]string{
			"persona":       string(persona),
			"custom_prompt": p.Text,
		},
	})
	if err != nil {
		obs.Logger().Warn("call stored but not registered with voice platform",
			zap.String("call_id", c.ID),
			zap.String("lead_id", c.LeadID),
			zap.String("profile_snapshot_id", snap.ID),
			zap.Error(err))
		return voice.Registration{}, fmt.Errorf("register call: %w", err)
	}
	if reg.CallID != "" {
		if err := s.Store.AttachPlatformCall(ctx, c.ID, reg.CallID); err != nil {
			obs.Logger().Warn("platform call not linked to stored call",
				zap.String("call_id", c.ID),
				zap.String("platform_call_id", reg.CallID),
				zap.Error(err))
			return voice.Registration{}, fmt.Errorf("attach platform call: %w", err)
		}
	}

	s.record(ctx, event.CallStarted, c.OrganizationID, c.BranchID, map[string]any{
		"call_id":             c.ID,
		"user_id":             caller.ID,
		"lead_id":             v.Lead.ID,
		"lead_type":           string(v.Lead.Type),
		"lead_status":         string(v.Lead.Status),
		"start_timestamp":     now.Format(time.RFC3339Nano),
		"profile_snapshot_id": snap.ID,
		"agent_id":            agent.ID,
		"retell_agent_id":     reg.AgentID,
		"call_type":           string(req.CallType),
	})
	return reg, nil
}

// List returns the branch's calls with their snapshots, newest first.
func (s *Service) List(ctx context.Context, caller auth.User, branchID string) ([]WithSnapshot, error) {
	if _, err := s.Branches.BranchFor(ctx, caller, branchID); err != nil {
		return nil, err
	}
	return s.Store.ListCalls(ctx, branchID, ownerFilter(caller))
}

func (s *Service) Get(ctx context.Context, caller auth.User, callID string) (Call, error) {
	return s.Store.GetCall(ctx, caller.OrganizationID, callID, ownerFilter(caller))
}

// Report returns the stored report and analytics, each defaulting to an
// empty object.
func (s *Service) Report(ctx context.Context, caller auth.User, callID string) (Report, error) {
	c, err := s.Get(ctx, caller, callID)
	if err != nil {
		return Report{}, err
	}
	return Report{Report: orEmpty(c.Report), Analytics: orEmpty(c.Analytics)}, nil
}

// Download renders the call as a plain-text transcript document.
func (s *Service) Download(ctx context.Context, caller auth.User, callID string) (string, error) {
	c, err := s.Get(ctx, caller, callID)
	if err != nil {
		return "", err
	}
	if c.Transcript == nil {
		return "", ErrTranscriptPending
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Call ID: %s\n", c.ID)
	fmt.Fprintf(&b, "Call Type: %s\n", c.Type)
	fmt.Fprintf(&b, "Agent ID: %s\n", c.AgentID)
	fmt.Fprintf(&b, "Lead ID: %s\n", c.LeadID)
	fmt.Fprintf(&b, "Duration: %s\n", c.Duration())
	if *c.Transcript != "" {
		fmt.Fprintf(&b, "\nTranscript:\n%s\n", *c.Transcript)
	}
	return b.String(), nil
}

func (s *Service) record(ctx context.Context, name event.Name, orgID, branchID string, data map[string]any) {
	if _, err := s.Events.Record(ctx, name, orgID, branchID, data); err != nil {
		obs.Logger().Error("record call event failed",
			zap.String("event", string(name)),
			zap.Any("call_id", data["call_id"]),
			zap.Error(err))
	}
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("{}")
	}
	return raw
}

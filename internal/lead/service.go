// Package lead manages leads, their persona profiles and the voice agents
// provisioned for them.
package lead

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"salesdeck.io/internal/audit"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/event"
	"salesdeck.io/internal/ids"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
	"salesdeck.io/internal/voice"
)

// Store persists leads. createdBy narrows lookups to one creator; an empty
// value matches every creator.
type Store interface {
	CreateLead(ctx context.Context, l Lead, p ProfileRecord, a Agent) error
	GetLead(ctx context.Context, orgID, leadID, createdBy string) (View, error)
	ListLeads(ctx context.Context, branchID, createdBy string) ([]View, error)
	UpdateLead(ctx context.Context, v View) error
	SoftDeleteLead(ctx context.Context, orgID, leadID, createdBy string, at time.Time) (bool, error)
	GetAgent(ctx context.Context, leadID string) (Agent, error)
}

// BranchResolver checks that a branch belongs to the caller's organization.
type BranchResolver interface {
	BranchFor(ctx context.Context, caller auth.User, branchID string) (org.Branch, error)
}

type CreateRequest struct {
	BranchID string  `json:"branch_id" validate:"required"`
	Type     Type    `json:"type"`
	Profile  Profile `json:"profile"`
}

// UpdateRequest carries partial lead and profile documents. Only the keys
// present are applied.
type UpdateRequest struct {
	Lead    map[string]json.RawMessage `json:"lead"`
	Profile map[string]json.RawMessage `json:"profile"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

var restrictedFields = map[string]struct{}{
	"id":              {},
	"object":          {},
	"created_at":      {},
	"updated_at":      {},
	"deleted_at":      {},
	"branch_id":       {},
	"organization_id": {},
	"lead_id":         {},
}

var leadFields = map[string]struct{}{
	"type":             {},
	"status":           {},
	"associated_agent": {},
	"known_to_agent":   {},
	"meeting_date":     {},
}

type Service struct {
	store    Store
	branches BranchResolver
	platform voice.Platform
	events   event.Recorder
	now      func() time.Time
}

func NewService(store Store, branches BranchResolver, platform voice.Platform, events event.Recorder) *Service {
	return &Service{store: store, branches: branches, platform: platform, events: events, now: time.Now}
}

// ownerFilter returns the creator restriction for caller: admins see every
// lead in their branch, managers only their own.
func ownerFilter(caller auth.User) string {
	if caller.IsAdmin() {
		return ""
	}
	return caller.ID
}

// Create stores a lead with its profile and provisions the voice agent that
// will play it.
func (s *Service) Create(ctx context.Context, caller auth.User, req CreateRequest) (View, error) {
	if err := validate.Struct(req); err != nil {
		return View{}, err
	}
	if req.Type == "" {
		req.Type = TypeSuspect
	}
	if !req.Type.Valid() {
		return View{}, validate.Fail("type", "oneof", "must be one of: suspect prospect")
	}
	branch, err := s.branches.BranchFor(ctx, caller, req.BranchID)
	if err != nil {
		return View{}, err
	}

	now := s.now().UTC()
	l := Lead{
		ID:             ids.New(ids.Lead),
		BranchID:       branch.ID,
		OrganizationID: branch.OrganizationID,
		Type:           req.Type,
		Status:         StatusYetToContact,
		CreatedByID:    caller.ID,
		CreatedByName:  caller.FullName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p := ProfileRecord{
		ID:             ids.New(ids.Profile),
		LeadID:         l.ID,
		BranchID:       l.BranchID,
		OrganizationID: l.OrganizationID,
		Profile:        req.Profile,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	llm, err := s.platform.CreateLLM(ctx, voice.PersonaPrompt)
	if err != nil {
		return View{}, fmt.Errorf("provision voice llm: %w", err)
	}
	platformAgent, err := s.platform.CreateAgent(ctx, l.ID, llm.WebsocketURL)
	if err != nil {
		obs.Logger().Warn("voice llm left without agent",
			zap.String("lead_id", l.ID),
			zap.String("llm_id", llm.ID),
			zap.Error(err))
		return View{}, fmt.Errorf("provision voice agent: %w", err)
	}
	a := Agent{
		ID:              ids.New(ids.Agent),
		LeadID:          l.ID,
		OrganizationID:  l.OrganizationID,
		BranchID:        l.BranchID,
		LLMID:           llm.ID,
		PlatformAgentID: platformAgent.ID,
		CreatedAt:       now,
	}
	if err := s.store.CreateLead(ctx, l, p, a); err != nil {
		obs.Logger().Warn("voice agent orphaned by failed lead insert",
			zap.String("lead_id", l.ID),
			zap.String("llm_id", a.LLMID),
			zap.String("platform_agent_id", a.PlatformAgentID),
			zap.Error(err))
		return View{}, fmt.Errorf("create lead: %w", err)
	}

	s.record(ctx, event.LeadCreated, l, map[string]any{
		"lead_id":    l.ID,
		"profile_id": p.ID,
		"type":       string(l.Type),
	})
	obs.Logger().Info("lead created",
		zap.String("lead_id", l.ID),
		zap.String("branch_id", l.BranchID),
		zap.String("agent_id", a.PlatformAgentID))
	return View{Lead: l, Profile: p}, nil
}

// List returns the branch's leads visible to caller, newest first.
func (s *Service) List(ctx context.Context, caller auth.User, branchID string) ([]View, error) {
	if _, err := s.branches.BranchFor(ctx, caller, branchID); err != nil {
		return nil, err
	}
	return s.store.ListLeads(ctx, branchID, ownerFilter(caller))
}

func (s *Service) Get(ctx context.Context, caller auth.User, leadID string) (View, error) {
	return s.store.GetLead(ctx, caller.OrganizationID, leadID, ownerFilter(caller))
}

// Find loads any lead in orgID regardless of who created it.
func (s *Service) Find(ctx context.Context, orgID, leadID string) (View, error) {
	return s.store.GetLead(ctx, orgID, leadID, "")
}

// Update applies a partial update. Scheduling the first meeting with a
// meeting date promotes the lead to a prospect.
func (s *Service) Update(ctx context.Context, caller auth.User, leadID string, req UpdateRequest) (View, error) {
	v, err := s.Get(ctx, caller, leadID)
	if err != nil {
		return View{}, err
	}
	before := v.Lead

	leadPatch := filterPatch(req.Lead, func(k string) bool {
		_, ok := leadFields[k]
		return ok
	})
	profilePatch := filterPatch(req.Profile, func(k string) bool {
		_, restricted := restrictedFields[k]
		return !restricted
	})

	if v.Lead, err = merge(v.Lead, leadPatch); err != nil {
		return View{}, validate.Fail("lead", "type", err.Error())
	}
	if v.Profile.Profile, err = merge(v.Profile.Profile, profilePatch); err != nil {
		return View{}, validate.Fail("profile", "type", err.Error())
	}
	if !v.Lead.Type.Valid() {
		return View{}, validate.Fail("lead.type", "oneof", "must be one of: suspect prospect")
	}
	if !v.Lead.Status.Valid() {
		return View{}, validate.Fail("lead.status", "oneof", "must be a known lead status")
	}

	typeSet := isSet(leadPatch, "type")
	statusSet := isSet(leadPatch, "status")
	if statusSet && v.Lead.Status == StatusFirstMeetingScheduled && isSet(leadPatch, "meeting_date") {
		v.Lead.Type = TypeProspect
		typeSet = true
	}

	if isSet(leadPatch, "known_to_agent") && !sameString(before.KnownToAgent, v.Lead.KnownToAgent) {
		agent, err := s.store.GetAgent(ctx, v.Lead.ID)
		if err != nil {
			return View{}, err
		}
		if err := s.platform.UpdateLLM(ctx, agent.LLMID, voice.PersonaPrompt); err != nil {
			return View{}, fmt.Errorf("refresh voice llm: %w", err)
		}
	}

	now := s.now().UTC()
	v.Lead.UpdatedAt = now
	v.Profile.UpdatedAt = now
	if err := s.store.UpdateLead(ctx, v); err != nil {
		return View{}, fmt.Errorf("update lead: %w", err)
	}

	if typeSet {
		s.record(ctx, event.LeadTypeUpdated, v.Lead, map[string]any{
			"lead_id":    v.Lead.ID,
			"profile_id": v.Profile.ID,
			"type":       string(v.Lead.Type),
		})
	}
	if statusSet {
		s.record(ctx, event.LeadStatusUpdated, v.Lead, map[string]any{
			"lead_id":    v.Lead.ID,
			"profile_id": v.Profile.ID,
			"status":     string(v.Lead.Status),
		})
	}
	return v, nil
}

// Delete soft-deletes the lead and its profile. Deleted is false when no
// visible lead matched.
func (s *Service) Delete(ctx context.Context, caller auth.User, leadID string) (DeleteResult, error) {
	ok, err := s.store.SoftDeleteLead(ctx, caller.OrganizationID, leadID, ownerFilter(caller), s.now().UTC())
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete lead: %w", err)
	}
	if ok {
		_ = audit.LogEvent(ctx, audit.EventLeadDelete, map[string]any{"lead_id": leadID})
	}
	return DeleteResult{ID: leadID, Deleted: ok}, nil
}

// Agent returns the voice agent mapping for a lead.
func (s *Service) Agent(ctx context.Context, leadID string) (Agent, error) {
	return s.store.GetAgent(ctx, leadID)
}

// record stores a domain event. The lead change is already committed, so a
// failure here is logged rather than returned.
func (s *Service) record(ctx context.Context, name event.Name, l Lead, data map[string]any) {
	if _, err := s.events.Record(ctx, name, l.OrganizationID, l.BranchID, data); err != nil {
		obs.Logger().Error("record lead event failed",
			zap.String("event", string(name)),
			zap.String("lead_id", l.ID),
			zap.Error(err))
	}
}

func filterPatch(patch map[string]json.RawMessage, keep func(string) bool) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(patch))
	for k, v := range patch {
		if keep(k) {
			out[k] = v
		}
	}
	return out
}

// merge overlays patch onto the JSON form of cur and decodes the result
// into a fresh value, so cur's pointer fields are never written through.
func merge[T any](cur T, patch map[string]json.RawMessage) (T, error) {
	if len(patch) == 0 {
		return cur, nil
	}
	current, err := json.Marshal(cur)
	if err != nil {
		return cur, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &doc); err != nil {
		return cur, err
	}
	for k, v := range patch {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return cur, err
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return cur, err
	}
	return out, nil
}

func isSet(patch map[string]json.RawMessage, key string) bool {
	raw, ok := patch[key]
	return ok && string(raw) != "null"
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

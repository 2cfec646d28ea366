package lead

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/event"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
	"salesdeck.io/internal/voice"
)

type memStore struct {
	views      map[string]View
	agents     map[string]Agent
	failCreate bool
}

func (m *memStore) CreateLead(_ context.Context, l Lead, p ProfileRecord, a Agent) error {
	if m.failCreate {
		return errors.New("db down")
	}
	m.views[l.ID] = View{Lead: l, Profile: p}
	m.agents[l.ID] = a
	return nil
}

func (m *memStore) GetLead(_ context.Context, orgID, leadID, createdBy string) (View, error) {
	v, ok := m.views[leadID]
	if !ok || v.Lead.OrganizationID != orgID || (createdBy != "" && v.Lead.CreatedByID != createdBy) {
		return View{}, ErrNotFound
	}
	return v, nil
}

func (m *memStore) ListLeads(_ context.Context, branchID, createdBy string) ([]View, error) {
	var out []View
	for _, v := range m.views {
		if v.Lead.BranchID == branchID && (createdBy == "" || v.Lead.CreatedByID == createdBy) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lead.ID < out[j].Lead.ID })
	return out, nil
}

func (m *memStore) UpdateLead(_ context.Context, v View) error {
	m.views[v.Lead.ID] = v
	return nil
}

func (m *memStore) SoftDeleteLead(ctx context.Context, orgID, leadID, createdBy string, _ time.Time) (bool, error) {
	if _, err := m.GetLead(ctx, orgID, leadID, createdBy); err != nil {
		return false, nil
	}
	delete(m.views, leadID)
	return true, nil
}

func (m *memStore) GetAgent(_ context.Context, leadID string) (Agent, error) {
	a, ok := m.agents[leadID]
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return a, nil
}

type fakePlatform struct {
	agentNames []string
	updated    []string
	failLLM    bool
	failAgent  bool
}

func (f *fakePlatform) CreateLLM(context.Context, string) (voice.LLM, error) {
	if f.failLLM {
		return voice.LLM{}, errors.New("platform down")
	}
	return voice.LLM{ID: "llm_1", WebsocketURL: "wss://llm/1"}, nil
}

func (f *fakePlatform) UpdateLLM(_ context.Context, llmID, _ string) error {
	f.updated = append(f.updated, llmID)
	return nil
}

func (f *fakePlatform) CreateAgent(_ context.Context, name, _ string) (voice.Agent, error) {
	if f.failAgent {
		return voice.Agent{}, errors.New("platform down")
	}
	f.agentNames = append(f.agentNames, name)
	return voice.Agent{ID: "ret_agent_1", Name: name}, nil
}

func (f *fakePlatform) RegisterCall(context.Context, voice.CallRequest) (voice.Registration, error) {
	return voice.Registration{}, nil
}

type recorder struct{ events []event.Event }

func (r *recorder) Record(_ context.Context, name event.Name, orgID, branchID string, data map[string]any) (event.Event, error) {
	e := event.Event{Name: name, OrganizationID: orgID, BranchID: branchID, Data: data}
	r.events = append(r.events, e)
	return e, nil
}

func (r *recorder) names() []event.Name {
	out := make([]event.Name, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

type branches struct{}

func (branches) BranchFor(_ context.Context, caller auth.User, branchID string) (org.Branch, error) {
	if branchID != "branch_1" || caller.OrganizationID != "org_1" {
		return org.Branch{}, org.ErrBranchNotFound
	}
	return org.Branch{ID: "branch_1", OrganizationID: "org_1"}, nil
}

var (
	admin   = auth.User{ID: "user_admin", FullName: "Ada", OrganizationID: "org_1", Role: auth.RoleAdmin, IsActive: true}
	manager = auth.User{ID: "user_mgr", FullName: "Max", OrganizationID: "org_1", Role: auth.RoleManager, IsActive: true}
)

func newTestService() (*Service, *memStore, *fakePlatform, *recorder) {
	store := &memStore{views: map[string]View{}, agents: map[string]Agent{}}
	platform := &fakePlatform{}
	rec := &recorder{}
	return NewService(store, branches{}, platform, rec), store, platform, rec
}

func strPtr(s string) *string { return &s }

func TestCreateProvisionsAgent(t *testing.T) {
	svc, store, platform, rec := newTestService()

	v, err := svc.Create(context.Background(), manager, CreateRequest{
		BranchID: "branch_1",
		Profile:  Profile{FullName: strPtr("Ravi Kumar"), City: strPtr("Pune")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v.Lead.Type != TypeSuspect || v.Lead.Status != StatusYetToContact {
		t.Fatalf("unexpected defaults: %+v", v.Lead)
	}
	if v.Lead.CreatedByID != manager.ID || v.Lead.CreatedByName != "Max" {
		t.Fatalf("creator not stamped: %+v", v.Lead)
	}
	if v.Profile.LeadID != v.Lead.ID || *v.Profile.FullName != "Ravi Kumar" {
		t.Fatalf("profile not linked: %+v", v.Profile)
	}
	if len(platform.agentNames) != 1 || platform.agentNames[0] != v.Lead.ID {
		t.Fatalf("agent should be named after the lead id, got %v", platform.agentNames)
	}
	a := store.agents[v.Lead.ID]
	if a.LLMID != "llm_1" || a.PlatformAgentID != "ret_agent_1" {
		t.Fatalf("agent mapping not stored: %+v", a)
	}
	if len(rec.events) != 1 || rec.events[0].Name != event.LeadCreated || rec.events[0].Data["profile_id"] != v.Profile.ID {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
}

func TestCreateFailures(t *testing.T) {
	svc, store, platform, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_9"}); !errors.Is(err, org.ErrBranchNotFound) {
		t.Fatalf("expected branch not found, got %v", err)
	}
	var verr *validate.Error
	if _, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_1", Type: "customer"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	platform.failLLM = true
	if _, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_1"}); err == nil {
		t.Fatalf("expected provisioning error")
	}
	if len(store.views) != 0 {
		t.Fatalf("no lead should be stored when provisioning fails")
	}
}

func TestCreateLogsOrphanedPlatformResources(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	svc, store, platform, rec := newTestService()
	ctx := context.Background()

	store.failCreate = true
	if _, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_1"}); err == nil {
		t.Fatal("expected store error")
	}
	entries := logs.FilterMessage("voice agent orphaned by failed lead insert").All()
	if len(entries) != 1 {
		t.Fatalf("expected one orphan warning, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["llm_id"] != "llm_1" || fields["platform_agent_id"] != "ret_agent_1" || fields["lead_id"] == "" {
		t.Fatalf("orphan warning missing identifiers: %+v", fields)
	}
	if len(rec.events) != 0 {
		t.Fatalf("no event should be recorded: %+v", rec.events)
	}

	store.failCreate = false
	platform.failAgent = true
	if _, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_1"}); err == nil {
		t.Fatal("expected agent error")
	}
	if n := logs.FilterMessage("voice llm left without agent").Len(); n != 1 {
		t.Fatalf("expected one llm warning, got %d", n)
	}
	if len(store.views) != 0 {
		t.Fatalf("nothing should be stored: %d", len(store.views))
	}
}

func TestOwnershipScoping(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	mine, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	theirs, err := svc.Create(ctx, admin, CreateRequest{BranchID: "branch_1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := svc.List(ctx, admin, "branch_1")
	if err != nil || len(all) != 2 {
		t.Fatalf("admin list: %v %d", err, len(all))
	}
	own, err := svc.List(ctx, manager, "branch_1")
	if err != nil || len(own) != 1 || own[0].Lead.ID != mine.Lead.ID {
		t.Fatalf("manager list: %v %+v", err, own)
	}
	if _, err := svc.Get(ctx, manager, theirs.Lead.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("manager must not see another creator's lead, got %v", err)
	}
	res, err := svc.Delete(ctx, manager, theirs.Lead.ID)
	if err != nil || res.Deleted {
		t.Fatalf("manager delete of foreign lead: %v %+v", err, res)
	}
	res, err = svc.Delete(ctx, admin, theirs.Lead.ID)
	if err != nil || !res.Deleted || res.ID != theirs.Lead.ID {
		t.Fatalf("admin delete: %v %+v", err, res)
	}
}

func TestUpdate(t *testing.T) {
	svc, _, platform, rec := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, manager, CreateRequest{BranchID: "branch_1", Profile: Profile{City: strPtr("Pune")}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec.events = nil

	req := UpdateRequest{
		Lead: map[string]json.RawMessage{
			"status":          json.RawMessage(`"1st Meeting Scheduled"`),
			"meeting_date":    json.RawMessage(`"2024-07-01T10:00:00Z"`),
			"known_to_agent":  json.RawMessage(`"Friends"`),
			"branch_id":       json.RawMessage(`"branch_9"`),
			"created_by_name": json.RawMessage(`"Mallory"`),
		},
		Profile: map[string]json.RawMessage{
			"city":    json.RawMessage(`"Mumbai"`),
			"lead_id": json.RawMessage(`"lead_other"`),
			"unknown": json.RawMessage(`1`),
		},
	}
	got, err := svc.Update(ctx, manager, v.Lead.ID, req)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Lead.Type != TypeProspect || got.Lead.Status != StatusFirstMeetingScheduled || got.Lead.MeetingDate == nil {
		t.Fatalf("meeting scheduling should promote to prospect: %+v", got.Lead)
	}
	if got.Lead.BranchID != "branch_1" || got.Lead.CreatedByName != "Max" || got.Profile.LeadID != v.Lead.ID {
		t.Fatalf("restricted fields changed: %+v %+v", got.Lead, got.Profile)
	}
	if *got.Profile.City != "Mumbai" {
		t.Fatalf("profile not merged: %+v", got.Profile)
	}
	if len(platform.updated) != 1 || platform.updated[0] != "llm_1" {
		t.Fatalf("known_to_agent change should refresh llm, got %v", platform.updated)
	}
	names := rec.names()
	if len(names) != 2 || names[0] != event.LeadTypeUpdated || names[1] != event.LeadStatusUpdated {
		t.Fatalf("unexpected events: %v", names)
	}

	rec.events = nil
	same := UpdateRequest{Lead: map[string]json.RawMessage{"known_to_agent": json.RawMessage(`"Friends"`)}}
	if _, err := svc.Update(ctx, manager, v.Lead.ID, same); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(platform.updated) != 1 || len(rec.events) != 0 {
		t.Fatalf("unchanged known_to_agent must not refresh or emit: %v %v", platform.updated, rec.names())
	}

	bad := UpdateRequest{Lead: map[string]json.RawMessage{"status": json.RawMessage(`"Married"`)}}
	var verr *validate.Error
	if _, err := svc.Update(ctx, manager, v.Lead.ID, bad); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(ctx, manager, "lead_missing", same); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/validate"
)

type memStore struct{ prompts map[string]Prompt }

func (m *memStore) CreatePrompt(_ context.Context, p Prompt) error {
	m.prompts[p.ID] = p
	return nil
}

func (m *memStore) GetPrompt(_ context.Context, orgID, id string) (Prompt, error) {
	p, ok := m.prompts[id]
	if !ok || p.OrganizationID != orgID {
		return Prompt{}, ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListPrompts(_ context.Context, branchID string) ([]Prompt, error) {
	var out []Prompt
	for _, p := range m.prompts {
		if p.BranchID == branchID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpdatePrompt(_ context.Context, p Prompt) error {
	m.prompts[p.ID] = p
	return nil
}

func (m *memStore) SoftDeletePrompt(_ context.Context, orgID, id string, _ time.Time) (bool, error) {
	p, ok := m.prompts[id]
	if !ok || p.OrganizationID != orgID {
		return false, nil
	}
	delete(m.prompts, id)
	return true, nil
}

type branches struct{}

func (branches) BranchFor(_ context.Context, caller auth.User, branchID string) (org.Branch, error) {
	if branchID != "branch_1" || caller.OrganizationID != "org_1" {
		return org.Branch{}, org.ErrBranchNotFound
	}
	return org.Branch{ID: branchID, OrganizationID: "org_1"}, nil
}

var (
	admin    = auth.User{ID: "user_admin", FullName: "Ada", OrganizationID: "org_1", Role: auth.RoleAdmin}
	outsider = auth.User{ID: "user_out", OrganizationID: "org_2", Role: auth.RoleAdmin}
)

func TestPromptLifecycle(t *testing.T) {
	store := &memStore{prompts: map[string]Prompt{}}
	svc := NewService(store, branches{})
	ctx := context.Background()

	report := "Rate the opener."
	p, err := svc.Create(ctx, admin, CreateRequest{
		Name:             " Cold open ",
		Text:             "Ask about family first.",
		BranchID:         "branch_1",
		ReportPromptText: &report,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.PromptType != TypeConversation || p.Name != "Cold open" || p.CreatedByName != "Ada" || p.OrganizationID != "org_1" {
		t.Fatalf("unexpected prompt: %+v", p)
	}

	if _, err := svc.Get(ctx, outsider, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other organizations must not see the prompt, got %v", err)
	}

	text := "Ask about goals."
	status := lead.StatusFirstMeetingScheduled
	updated, err := svc.Update(ctx, admin, p.ID, UpdateRequest{Text: &text, MeetingStatus: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Text != text || *updated.MeetingStatus != status || updated.Name != "Cold open" || updated.BranchID != "branch_1" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	list, err := svc.List(ctx, admin, "branch_1")
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %d", err, len(list))
	}

	res, err := svc.Delete(ctx, outsider, p.ID)
	if err != nil || res.Deleted {
		t.Fatalf("foreign delete: %v %+v", err, res)
	}
	res, err = svc.Delete(ctx, admin, p.ID)
	if err != nil || !res.Deleted {
		t.Fatalf("Delete: %v %+v", err, res)
	}
	if _, err := svc.Get(ctx, admin, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted prompt still visible: %v", err)
	}
}

func TestPromptValidation(t *testing.T) {
	svc := NewService(&memStore{prompts: map[string]Prompt{}}, branches{})
	ctx := context.Background()
	bogus := lead.Status("Whenever")

	cases := []CreateRequest{
		{Text: "t", BranchID: "branch_1"},
		{Name: "n", Text: "t", BranchID: "branch_1", PromptType: "summary"},
		{Name: "n", Text: "t", BranchID: "branch_1", MeetingStatus: &bogus},
	}
	for i, req := range cases {
		var verr *validate.Error
		if _, err := svc.Create(ctx, admin, req); !errors.As(err, &verr) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if _, err := svc.Create(ctx, admin, CreateRequest{Name: "n", Text: "t", BranchID: "branch_x"}); !errors.Is(err, org.ErrBranchNotFound) {
		t.Fatalf("expected branch not found, got %v", err)
	}
}

package event

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memStore struct {
	events []Event
	err    error
}

func (m *memStore) InsertEvent(_ context.Context, e Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func TestRecordStampsEvent(t *testing.T) {
	store := &memStore{}
	svc := NewService(store)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	svc.now = func() time.Time { return fixed }

	e, err := svc.Record(context.Background(), LeadCreated, "org_1", "branch_1", map[string]any{"lead_id": "lead_1"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !strings.HasPrefix(e.ID, "evt_") {
		t.Fatalf("unexpected id %q", e.ID)
	}
	if !e.CreatedAt.Equal(fixed) || e.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", e.CreatedAt)
	}
	if len(store.events) != 1 || store.events[0].Data["lead_id"] != "lead_1" {
		t.Fatalf("event not stored: %+v", store.events)
	}
}

func TestRecordErrors(t *testing.T) {
	svc := NewService(&memStore{err: errors.New("db down")})
	if _, err := svc.Record(context.Background(), CallStarted, "o", "b", nil); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := svc.Record(context.Background(), "", "o", "b", nil); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

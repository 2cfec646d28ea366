// Package event records append-only domain events that feed reporting.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"salesdeck.io/internal/ids"
	"salesdeck.io/internal/obs"
)

// Name identifies a domain event.
type Name string

const (
	LeadCreated       Name = "lead_created"
	LeadStatusUpdated Name = "lead_status_updated"
	LeadTypeUpdated   Name = "lead_type_updated"
	CallStarted       Name = "call_started"
	CallEnded         Name = "call_ended"
)

// Event is one recorded occurrence.
type Event struct {
	ID             string         `json:"id"`
	Name           Name           `json:"name"`
	Data           map[string]any `json:"data"`
	OrganizationID string         `json:"organization_id"`
	BranchID       string         `json:"branch_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store persists events.
type Store interface {
	InsertEvent(ctx context.Context, e Event) error
}

// Recorder is what other services depend on.
type Recorder interface {
	Record(ctx context.Context, name Name, orgID, branchID string, data map[string]any) (Event, error)
}

// Service stamps ids and timestamps on events before storing them.
type Service struct {
	store Store
	now   func() time.Time
}

var _ Recorder = (*Service)(nil)

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Record(ctx context.Context, name Name, orgID, branchID string, data map[string]any) (Event, error) {
	if name == "" {
		return Event{}, errors.New("event: name is required")
	}
	if data == nil {
		data = map[string]any{}
	}
	e := Event{
		ID:             ids.New(ids.Event),
		Name:           name,
		Data:           data,
		OrganizationID: orgID,
		BranchID:       branchID,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertEvent(ctx, e); err != nil {
		return Event{}, fmt.Errorf("record %s: %w", name, err)
	}
	obs.Logger().Debug("event recorded",
		zap.String("event", string(name)),
		zap.String("event_id", e.ID),
		zap.String("branch_id", branchID))
	return e, nil
}

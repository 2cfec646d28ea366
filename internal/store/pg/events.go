package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"salesdeck.io/internal/event"
)

var _ event.Store = (*Store)(nil)

func (s *Store) InsertEvent(ctx context.Context, e event.Event) error {
	data, err := json.Marshal(orEmptyMap(e.Data))
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into events (id, name, data, branch_id, organization_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, e.ID, string(e.Name), string(data), e.BranchID, e.OrganizationID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

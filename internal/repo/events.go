package repo

import (
	"context"
	"fmt"

	"github.com/noah-isme/toko-checkout/internal/events"
)

// InsertDomainEvent appends an event to the outbox table.
func (s *Store) InsertDomainEvent(ctx context.Context, ev events.Event) error {
	if err := requireTenant(ev.TenantID); err != nil {
		return err
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO domain_events (id, tenant_id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.TenantID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert domain event: %w", err)
	}
	return nil
}

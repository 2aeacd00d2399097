package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/conversation"
)

func (s *Store) LoadState(ctx context.Context, tenantID uuid.UUID, customerRef string) (conversation.Record, error) {
	if err := requireTenant(tenantID); err != nil {
		return conversation.Record{}, err
	}
	rec := conversation.Record{TenantID: tenantID, CustomerRef: customerRef}
	var name string
	err := s.DB.QueryRow(ctx, `
		SELECT name, payload, updated_at FROM conversation_states
		WHERE tenant_id = $1 AND customer_ref = $2`, tenantID, customerRef).
		Scan(&name, &rec.Payload, &rec.UpdatedAt)
	if err != nil {
		return conversation.Record{}, mapNoRows(err, conversation.ErrNotFound)
	}
	rec.Name = conversation.StateName(name)
	return rec, nil
}

func (s *Store) SaveState(ctx context.Context, rec conversation.Record) error {
	if err := requireTenant(rec.TenantID); err != nil {
		return err
	}
	payload := []byte(rec.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO conversation_states (tenant_id, customer_ref, name, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, customer_ref) DO UPDATE
		SET name = EXCLUDED.name, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		rec.TenantID, rec.CustomerRef, string(rec.Name), payload, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save conversation state: %w", err)
	}
	return nil
}

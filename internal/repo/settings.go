package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// LoadSettings reads the tenant's settings document. A tenant without a row
// gets zero settings, which resolve to defaults.
func (s *Store) LoadSettings(ctx context.Context, tenantID uuid.UUID) (tenant.Settings, error) {
	if err := requireTenant(tenantID); err != nil {
		return tenant.Settings{}, err
	}
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT settings FROM tenant_settings WHERE tenant_id = $1`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return tenant.Settings{}, nil
	}
	if err != nil {
		return tenant.Settings{}, fmt.Errorf("load tenant settings: %w", err)
	}
	return decodeSettings(raw)
}

// SaveSettings upserts the tenant's settings document.
func (s *Store) SaveSettings(ctx context.Context, tenantID uuid.UUID, settings tenant.Settings) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode tenant settings: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO tenant_settings (tenant_id, settings, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at`,
		tenantID, raw, s.now())
	if err != nil {
		return fmt.Errorf("save tenant settings: %w", err)
	}
	return nil
}

func decodeSettings(raw []byte) (tenant.Settings, error) {
	var settings tenant.Settings
	if len(raw) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return tenant.Settings{}, fmt.Errorf("decode tenant settings: %w", err)
	}
	return settings, nil
}

package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tax"
)

// Settings is the pricing configuration of a tenant. Nil or empty members mean
// the tenant has not configured them and documented defaults apply.
type Settings struct {
	Shipping                   *shipping.Config   `json:"shipping,omitempty"`
	Tax                        *tax.Config        `json:"tax,omitempty"`
	Slabs                      discount.SlabTable `json:"slabs,omitempty"`
	CatalogOnlyForNewCustomers bool               `json:"catalogOnlyForNewCustomers"`
}

// ConfigSource loads raw tenant settings. Missing rows are not errors.
type ConfigSource interface {
	LoadSettings(ctx context.Context, tenantID uuid.UUID) (Settings, error)
}

// ConfigProvider resolves tenant settings through an optional cache.
type ConfigProvider struct {
	Source ConfigSource
	Cache  *Cache
	Logger *zerolog.Logger
}

func (p *ConfigProvider) log() *zerolog.Logger {
	if p == nil || p.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return p.Logger
}

// Settings returns the tenant's settings with invalid slab tables replaced by
// the defaults. Only a failing source is reported as an error.
func (p *ConfigProvider) Settings(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	if p == nil || p.Source == nil {
		return Settings{}, nil
	}
	key := PrefixKey(tenantID.String(), "pricing-settings")
	var cached Settings
	if hit, err := p.Cache.GetJSON(ctx, key, &cached); err != nil {
		p.log().Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("tenant settings cache read")
	} else if hit {
		return cached, nil
	}
	settings, err := p.Source.LoadSettings(ctx, tenantID)
	if err != nil {
		return Settings{}, fmt.Errorf("load tenant settings: %w", err)
	}
	if len(settings.Slabs) > 0 {
		if err := settings.Slabs.Validate(); err != nil {
			p.log().Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("invalid slab table, using defaults")
			settings.Slabs = nil
		}
	}
	if err := p.Cache.SetJSON(ctx, key, settings); err != nil {
		p.log().Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("tenant settings cache write")
	}
	return settings, nil
}

// Invalidate drops the cached settings for a tenant.
func (p *ConfigProvider) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if p == nil {
		return nil
	}
	return p.Cache.Delete(ctx, PrefixKey(tenantID.String(), "pricing-settings"))
}

package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/shipping"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

type countingSource struct {
	calls    int
	settings tenant.Settings
	err      error
}

func (s *countingSource) LoadSettings(context.Context, uuid.UUID) (tenant.Settings, error) {
	s.calls++
	return s.settings, s.err
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSettingsCachedAfterFirstLoad(t *testing.T) {
	src := &countingSource{settings: tenant.Settings{Shipping: &shipping.Config{StandardRate: decimal.NewFromInt(20)}}}
	provider := &tenant.ConfigProvider{Source: src, Cache: tenant.NewCache(newRedis(t), time.Minute)}
	ctx := context.Background()
	id := uuid.New()

	first, err := provider.Settings(ctx, id)
	require.NoError(t, err)
	second, err := provider.Settings(ctx, id)
	require.NoError(t, err)

	require.Equal(t, 1, src.calls)
	require.True(t, second.Shipping.StandardRate.Equal(first.Shipping.StandardRate))

	require.NoError(t, provider.Invalidate(ctx, id))
	_, err = provider.Settings(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestSettingsDropsInvalidSlabs(t *testing.T) {
	bad := discount.SlabTable{{MinUnits: 1, MinPercent: decimal.NewFromInt(4), MaxPercent: decimal.NewFromInt(2)}}
	provider := &tenant.ConfigProvider{Source: &countingSource{settings: tenant.Settings{Slabs: bad}}}

	settings, err := provider.Settings(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, settings.Slabs)
}

func TestSettingsMissingSourceUsesDefaults(t *testing.T) {
	var provider *tenant.ConfigProvider
	settings, err := provider.Settings(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, settings.Shipping)
	require.Nil(t, settings.Tax)
}

func TestSettingsSourceFailureSurfaces(t *testing.T) {
	provider := &tenant.ConfigProvider{Source: &countingSource{err: errors.New("db down")}}
	_, err := provider.Settings(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestIDFromContext(t *testing.T) {
	_, err := tenant.IDFromContext(context.Background())
	require.ErrorIs(t, err, tenant.ErrTenantMissing)

	_, err = tenant.IDFromContext(tenant.With(context.Background(), "not-a-uuid"))
	require.ErrorIs(t, err, tenant.ErrTenantInvalid)

	id := uuid.New()
	got, err := tenant.IDFromContext(tenant.With(context.Background(), id.String()))
	require.NoError(t, err)
	require.Equal(t, id, got)
}

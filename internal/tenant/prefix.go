package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrTenantMissing indicates the tenant identifier was not found in context.
	ErrTenantMissing = errors.New("tenant missing")
	// ErrTenantInvalid indicates the tenant identifier could not be parsed.
	ErrTenantInvalid = errors.New("tenant invalid")
)

// With stores tenant identifier into the provided context.
func With(ctx context.Context, id string) context.Context {
	return WithTenant(ctx, id)
}

// From exposes the tenant identifier retrieval helper.
func From(ctx context.Context) (string, bool) {
	return FromContext(ctx)
}

// IDFromContext returns the tenant identifier parsed as a UUID.
func IDFromContext(ctx context.Context) (uuid.UUID, error) {
	raw, ok := From(ctx)
	if !ok {
		return uuid.Nil, ErrTenantMissing
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrTenantInvalid, err)
	}
	return id, nil
}

// PrefixKey creates a namespaced cache/lock key per tenant slug or id.
func PrefixKey(tenantSlugOrID, key string) string {
	if tenantSlugOrID == "" {
		return key
	}
	return tenantSlugOrID + ":" + key
}

package queue

import (
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// TaskID returns a per-tenant task id, e.g. "<tenant>:ledger:sync:<key>".
func TaskID(tenantID uuid.UUID, kind, key string) string {
	return tenant.PrefixKey(tenantID.String(), kind+":"+key)
}

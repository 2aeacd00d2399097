package common

import (
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultIdemTTL = 24 * time.Hour

// Idem rejects a repeated Idempotency-Key on write endpoints. Keys are scoped
// by tenant, method and path so two tenants never collide.
type Idem struct {
	R            *redis.Client
	TTL          time.Duration
	TenantHeader string
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return defaultIdemTTL
	}
	return i.TTL
}

func (i Idem) hashKey(r *http.Request, key string) string {
	header := i.TenantHeader
	if header == "" {
		header = "X-Tenant-ID"
	}
	scope := strings.TrimSpace(r.Header.Get(header))
	return "idem:" + Sha256Hex(scope+"|"+r.Method+"|"+r.URL.Path+"|"+key)
}

// Middleware claims the key before the handler runs. A request without the
// header passes through untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := i.R.SetNX(r.Context(), i.hashKey(r, header), "claimed", i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

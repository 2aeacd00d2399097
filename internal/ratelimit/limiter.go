package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// Decision is the outcome of one rate-limited request.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Fixed is a fixed-window limiter on top of a ulule store.
type Fixed struct {
	L *limiter.Limiter
}

// NewFixed parses a rate such as "10-M" and binds it to store.
func NewFixed(store limiter.Store, formatted string) (*Fixed, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	return &Fixed{L: limiter.New(store, rate)}, nil
}

// NewRedisStore keeps counters in Redis under prefix.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

func (f *Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}

// TenantCustomerKey scopes the limit to the tenant and the {customer} route param.
func TenantCustomerKey(r *http.Request) string {
	tenantID, _ := tenant.From(r.Context())
	customer := chi.URLParam(r, "customer")
	if customer == "" {
		customer = common.ClientIP(r)
	}
	return tenant.PrefixKey(tenantID, customer)
}

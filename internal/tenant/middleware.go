package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
)

type contextKey string

const tenantContextKey contextKey = "tenant.id"

// Resolver finds the tenant for a request from a header or the host subdomain.
type Resolver struct {
	HeaderName string
	RootDomain string
	// Aliases maps subdomain slugs to tenant UUIDs.
	Aliases map[string]string
}

// NewResolver returns a resolver. If headerName is empty, "X-Tenant-ID" is used.
func NewResolver(headerName, rootDomain string, aliases map[string]string) *Resolver {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}
	return &Resolver{
		HeaderName: headerName,
		RootDomain: strings.ToLower(strings.TrimSpace(rootDomain)),
		Aliases:    aliases,
	}
}

// Middleware stores the resolved tenant on the request context and rejects
// requests that carry no usable tenant.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tenantID := r.Resolve(req)
		if tenantID == "" {
			common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant could not be resolved", nil)
			return
		}
		if _, err := uuid.Parse(tenantID); err != nil {
			common.JSONError(w, http.StatusBadRequest, "TENANT_INVALID", "tenant identifier is not valid", nil)
			return
		}
		next.ServeHTTP(w, req.WithContext(WithTenant(req.Context(), tenantID)))
	})
}

// Resolve returns the tenant id from the header, falling back to the
// subdomain alias table.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if tenantID := strings.TrimSpace(req.Header.Get(r.HeaderName)); tenantID != "" {
		return tenantID
	}
	slug := r.subdomain(hostWithoutPort(req.Host))
	if slug == "" {
		return ""
	}
	if id, ok := r.Aliases[slug]; ok {
		return id
	}
	return slug
}

func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || r.RootDomain == "" || host == r.RootDomain {
		return ""
	}
	suffix := "." + r.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	host = strings.TrimSuffix(host, suffix)
	return strings.Split(host, ".")[0]
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return hostport
}

// WithTenant stores the tenant identifier inside the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey, tenantID)
}

// FromContext extracts the tenant identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, ok := ctx.Value(tenantContextKey).(string)
	if !ok {
		return "", false
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", false
	}
	return tenantID, true
}

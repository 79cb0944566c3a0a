package httpapi

import (
	"context"
	"net/http"
	"strings"

	"reservo.org/internal/audit"
	"reservo.org/internal/obs"
	"reservo.org/internal/policy"
	"reservo.org/internal/token"
)

// scopeKind declares how a route's requested tenant scope is found.
type scopeKind int

const (
	scopeNone scopeKind = iota
	// scopeTenantQuery reads the requested tenant from the ?tenant= query
	// parameter, defaulting to the caller's own tenant.
	scopeTenantQuery
)

// route is the declarative per-route requirement consumed by the guard:
// an allowed-role set (empty means any authenticated caller) and the
// scope-check kind.
type route struct {
	roles []policy.Role
	scope scopeKind
}

type scopeTenantKey struct{}

func contextWithScopeTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, scopeTenantKey{}, tenantID)
}

// scopeTenantFromContext returns the tenant scope the guard granted for
// this request. Empty means unrestricted, which only ever happens for
// superadmin callers.
func scopeTenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(scopeTenantKey{}).(string); ok {
		return v
	}
	return ""
}

// protect enforces the route declaration. Ordering is fixed:
// authentication happened in withAuth, then the role requirement, then
// the tenant scope, then dispatch. Every rejection writes a response.
func (a *API) protect(rt route, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := token.ClaimsFromContext(r.Context())
		if !ok {
			// withAuth guards every non-public path; reaching here without
			// claims means the route was registered as public by mistake.
			w.Header().Set("WWW-Authenticate", `Bearer realm="reservo"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		subject := claims.Subject()

		if len(rt.roles) > 0 && !policy.RequireRole(subject, rt.roles...) {
			obs.AuthDenial("role_forbidden")
			_ = audit.LogEvent(r.Context(), "authz.role.denied", map[string]any{
				"path": r.URL.Path,
			})
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}

		if rt.scope == scopeTenantQuery {
			tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
			if subject.Role != policy.RoleSuperadmin {
				if tenant == "" {
					tenant = subject.TenantID
				}
				if !policy.CanAccessTenant(subject, tenant) {
					obs.AuthDenial("tenant_forbidden")
					_ = audit.LogEvent(r.Context(), "authz.tenant.denied", map[string]any{
						"path":             r.URL.Path,
						"requested_tenant": tenant,
					})
					writeError(w, r, http.StatusForbidden, "tenant access denied")
					return
				}
			}
			r = r.WithContext(contextWithScopeTenant(r.Context(), tenant))
		}

		next(w, r)
	}
}

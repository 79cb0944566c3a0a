// Package httpapi is the HTTP surface of the gateway. Every guarded route
// passes the same pipeline: bearer token extraction and verification, the
// role requirement, then the tenant scope check, before a handler runs.
// The pipeline is the only place trust decisions are made.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"reservo.org/internal/identity"
	"reservo.org/internal/obs"
	"reservo.org/internal/policy"
	"reservo.org/internal/store"
	"reservo.org/internal/token"
)

// Options wires the API's collaborators.
type Options struct {
	Codec    *token.Codec
	Resolver *identity.Resolver
	Store    store.Store
	Version  string

	// SuperadminPassword is either a bcrypt hash or an opaque literal.
	SuperadminPassword string

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	codec    *token.Codec
	resolver *identity.Resolver
	store    store.Store
	validate *validator.Validate
	version  string

	superadminPassword string

	rateLimitPerSecond int
	rateLimitBurst     int
	maxBodyBytes       int64
}

func New(opts Options) *API {
	a := &API{
		mux:                http.NewServeMux(),
		codec:              opts.Codec,
		resolver:           opts.Resolver,
		store:              opts.Store,
		validate:           validator.New(validator.WithRequiredStructEnabled()),
		version:            opts.Version,
		superadminPassword: opts.SuperadminPassword,
		rateLimitPerSecond: opts.RateLimitPerSecond,
		rateLimitBurst:     opts.RateLimitBurst,
		maxBodyBytes:       opts.MaxBodyBytes,
	}
	if a.rateLimitPerSecond <= 0 {
		a.rateLimitPerSecond = 20
	}
	if a.rateLimitBurst <= 0 {
		a.rateLimitBurst = 40
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	superadminOnly := []policy.Role{policy.RoleSuperadmin}
	adminUp := []policy.Role{policy.RoleSuperadmin, policy.RoleAdmin}
	anyStaff := []policy.Role{policy.RoleSuperadmin, policy.RoleAdmin, policy.RoleVolunteer}

	// Trust boundary entry points: no pipeline.
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/superadmin-login", a.handleSuperadminLogin)

	a.mux.HandleFunc("/v1/auth/whoami", a.protect(route{}, a.handleWhoami))
	a.mux.HandleFunc("/v1/tenants", a.protect(route{roles: superadminOnly}, a.handleTenantsCollection))
	a.mux.HandleFunc("/v1/tenants/", a.protect(route{roles: adminUp}, a.handleTenantResource))
	a.mux.HandleFunc("/v1/volunteers", a.protect(route{roles: adminUp, scope: scopeTenantQuery}, a.handleVolunteers))
	a.mux.HandleFunc("/v1/reservations", a.protect(route{roles: anyStaff, scope: scopeTenantQuery}, a.handleReservations))
	a.mux.HandleFunc("/v1/participants", a.protect(route{roles: anyStaff, scope: scopeTenantQuery}, a.handleParticipants))
	a.mux.HandleFunc("/v1/tables", a.protect(route{roles: anyStaff, scope: scopeTenantQuery}, a.handleTables))

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateLimitBurst, a.rateLimitPerSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "reservo-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "record store unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "reservo-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

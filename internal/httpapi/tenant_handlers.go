package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reservo.org/internal/audit"
	"reservo.org/internal/ids"
	"reservo.org/internal/obs"
	"reservo.org/internal/policy"
	"reservo.org/internal/store"
	"reservo.org/internal/token"
)

type createTenantRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	AdminCode string `json:"admin_code"`
}

type tenantPayload struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt any    `json:"created_at"`
}

func tenantFromRecord(rec store.Record) tenantPayload {
	code, _ := rec.StringField(store.FieldBusinessCode)
	name, _ := rec.StringField(store.FieldName)
	return tenantPayload{ID: rec.ID, Code: code, Name: name, CreatedAt: rec.CreatedAt}
}

func (a *API) handleTenantsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTenants(w, r)
	case http.MethodPost:
		a.createTenant(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listTenants(w http.ResponseWriter, r *http.Request) {
	recs, err := a.store.List(r.Context(), store.Tenants)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	items := make([]tenantPayload, 0, len(recs))
	for _, rec := range recs {
		items = append(items, tenantFromRecord(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.validateRequest(w, r, req) {
		return
	}

	adminCode := strings.TrimSpace(req.AdminCode)
	if adminCode == "" {
		adminCode = ids.New()
	}

	rec, err := a.store.Create(r.Context(), store.Tenants, map[string]any{
		store.FieldBusinessCode: strings.TrimSpace(req.Code),
		store.FieldName:         strings.TrimSpace(req.Name),
		store.FieldAdminCode:    adminCode,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, http.StatusConflict, "tenant code already exists")
			return
		}
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "tenant.create", map[string]any{
		"tenant_id": rec.ID,
		"code":      req.Code,
	})

	w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", rec.ID))
	writeJSON(w, http.StatusCreated, tenantFromRecord(rec))
}

// handleTenantResource serves GET /v1/tenants/{idOrCode}. The two
// addressing schemes bind to different checks and never mix: an opaque
// record id goes through the record-id self-access rule, a business code
// through the tenant scope rule.
func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tenants/"), "/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	subject := claims.Subject()

	// Opaque record id first.
	rec, err := a.store.FindByID(r.Context(), store.Tenants, key)
	if err == nil {
		if !policy.CanAccessRecordByID(subject, rec.ID) {
			obs.AuthDenial("tenant_forbidden")
			writeError(w, r, http.StatusForbidden, "tenant access denied")
			return
		}
		writeJSON(w, http.StatusOK, tenantFromRecord(rec))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		handleStoreError(w, r, err)
		return
	}

	// Business code addressing. The scope check runs before the lookup so
	// a denied caller learns nothing about which codes exist.
	if !policy.CanAccessTenant(subject, key) {
		obs.AuthDenial("tenant_forbidden")
		writeError(w, r, http.StatusForbidden, "tenant access denied")
		return
	}
	rec, err = a.store.FindOneByField(r.Context(), store.Tenants, store.FieldBusinessCode, key)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantFromRecord(rec))
}

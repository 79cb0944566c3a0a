package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"reservo.org/internal/audit"
	"reservo.org/internal/obs"
	"reservo.org/internal/policy"
	"reservo.org/internal/store"
	"reservo.org/internal/token"
)

type createVolunteerRequest struct {
	Name       string `json:"name" validate:"required"`
	AccessCode string `json:"access_code" validate:"required"`
	Tenant     string `json:"tenant"`
}

type createReservationRequest struct {
	Name        string `json:"name" validate:"required"`
	TableNumber string `json:"table_number" validate:"required"`
	Seats       int    `json:"seats" validate:"omitempty,gte=1,lte=50"`
	Tenant      string `json:"tenant"`
}

const defaultTableCapacity = 8

// listScoped lists a collection filtered down to the request's tenant
// scope. An empty scope (superadmin without ?tenant=) returns everything;
// for scoped callers the records with no resolvable tenant are dropped.
func (a *API) listScoped(w http.ResponseWriter, r *http.Request, collection string) {
	recs, err := a.store.List(r.Context(), collection)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	tenant := scopeTenantFromContext(r.Context())
	if tenant != "" {
		recs, err = a.resolver.FilterByTenant(r.Context(), recs, tenant)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}

// createTargetTenant decides which tenant a new resource belongs to: the
// body's tenant code when given, the request scope otherwise. Scoped
// callers may only ever write into their own tenant; superadmin must name
// one explicitly.
func (a *API) createTargetTenant(w http.ResponseWriter, r *http.Request, bodyTenant string) (string, bool) {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	subject := claims.Subject()

	tenant := strings.TrimSpace(bodyTenant)
	if tenant == "" {
		tenant = scopeTenantFromContext(r.Context())
	}
	if tenant == "" {
		writeErrorDetails(w, r, http.StatusBadRequest, "invalid request", "tenant (required)")
		return "", false
	}
	if subject.Role != policy.RoleSuperadmin && !policy.CanAccessTenant(subject, tenant) {
		obs.AuthDenial("tenant_forbidden")
		writeError(w, r, http.StatusForbidden, "tenant access denied")
		return "", false
	}
	return tenant, true
}

func (a *API) handleVolunteers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listScoped(w, r, store.Volunteers)
	case http.MethodPost:
		a.createVolunteer(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createVolunteer(w http.ResponseWriter, r *http.Request) {
	var req createVolunteerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.validateRequest(w, r, req) {
		return
	}
	tenant, ok := a.createTargetTenant(w, r, req.Tenant)
	if !ok {
		return
	}

	rec, err := a.store.Create(r.Context(), store.Volunteers, map[string]any{
		store.FieldName:          strings.TrimSpace(req.Name),
		store.FieldVolunteerCode: strings.TrimSpace(req.AccessCode),
		store.FieldTenantCode:    tenant,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, http.StatusConflict, "access code already in use")
			return
		}
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "volunteer.create", map[string]any{
		"volunteer_id": rec.ID,
		"tenant_id":    tenant,
	})
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listScoped(w, r, store.Reservations)
	case http.MethodPost:
		a.createReservation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.validateRequest(w, r, req) {
		return
	}
	tenant, ok := a.createTargetTenant(w, r, req.Tenant)
	if !ok {
		return
	}

	tableNumber := strings.TrimSpace(req.TableNumber)
	if err := a.ensureTable(r, tenant, tableNumber); err != nil {
		handleStoreError(w, r, err)
		return
	}

	seats := req.Seats
	if seats == 0 {
		seats = 1
	}
	rec, err := a.store.Create(r.Context(), store.Reservations, map[string]any{
		store.FieldName:        strings.TrimSpace(req.Name),
		store.FieldTableNumber: tableNumber,
		"seats":                seats,
		store.FieldTenantCode:  tenant,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "reservation.create", map[string]any{
		"reservation_id": rec.ID,
		"tenant_id":      tenant,
		"table_number":   tableNumber,
	})
	writeJSON(w, http.StatusCreated, rec)
}

// ensureTable provisions a table record on first use: a reservation may
// name a table number the tenant has never seated before.
func (a *API) ensureTable(r *http.Request, tenant, tableNumber string) error {
	recs, err := a.store.List(r.Context(), store.Tables)
	if err != nil {
		return err
	}
	recs, err = a.resolver.FilterByTenant(r.Context(), recs, tenant)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if num, ok := rec.StringField(store.FieldTableNumber); ok && num == tableNumber {
			return nil
		}
	}
	_, err = a.store.Create(r.Context(), store.Tables, map[string]any{
		store.FieldTableNumber: tableNumber,
		store.FieldCapacity:    defaultTableCapacity,
		store.FieldTenantCode:  tenant,
	})
	if err != nil {
		return err
	}
	_ = audit.LogEvent(r.Context(), "table.autoprovision", map[string]any{
		"tenant_id":    tenant,
		"table_number": tableNumber,
	})
	return nil
}

func (a *API) handleParticipants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.listScoped(w, r, store.Participants)
}

func (a *API) handleTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.listScoped(w, r, store.Tables)
}

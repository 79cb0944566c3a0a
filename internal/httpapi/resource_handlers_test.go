package httpapi

import (
	"context"
	"net/http"
	"testing"

	"reservo.org/internal/policy"
	"reservo.org/internal/store"
)

func TestCreateVolunteer(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/volunteers", bearer, map[string]any{
		"name":        "Anna",
		"access_code": "vol-123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	// The new volunteer can log in straight away.
	rr = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"code": "vol-123",
		"role": "volunteer",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("created volunteer cannot log in: %d %s", rr.Code, rr.Body.String())
	}
	ident := decodeBody(t, rr)["identity"].(map[string]any)
	if ident["tenant_id"] != "ASBL-A" {
		t.Fatalf("volunteer landed in the wrong tenant: %v", ident)
	}
}

func TestCreateVolunteerDuplicateAccessCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	env.store.Seed(store.Volunteers, "recV1", map[string]any{
		store.FieldName:          "Anna",
		store.FieldVolunteerCode: "vol-123",
		store.FieldTenantCode:    "ASBL-A",
	})
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/volunteers", bearer, map[string]any{
		"name":        "Clone",
		"access_code": "vol-123",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["error"] != "access code already in use" {
		t.Fatalf("unexpected error message: %v", body)
	}
}

func TestCreateVolunteerForeignTenant(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	env.seedTenant(t, "recT2", "ASBL-B", "admin-b")
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/volunteers", bearer, map[string]any{
		"name":        "Infiltrator",
		"access_code": "vol-x",
		"tenant":      "ASBL-B",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSuperadminCreateVolunteerNeedsExplicitTenant(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	bearer := env.tokenFor(t, "superadmin", policy.RoleSuperadmin, "")

	rr := env.do(t, http.MethodPost, "/v1/volunteers", bearer, map[string]any{
		"name":        "Anna",
		"access_code": "vol-1",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a tenant, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/v1/volunteers", bearer, map[string]any{
		"name":        "Anna",
		"access_code": "vol-1",
		"tenant":      "ASBL-A",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 with an explicit tenant, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateReservationProvisionsTable(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/reservations", bearer, map[string]any{
		"name":         "Dupont",
		"table_number": "12",
		"seats":        4,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	tables, err := env.store.List(context.Background(), store.Tables)
	if err != nil {
		t.Fatalf("List tables: %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("expected the table to be auto-provisioned, got %d records", len(tables))
	}
	if num, _ := tables[0].StringField(store.FieldTableNumber); num != "12" {
		t.Fatalf("unexpected table record: %v", tables[0].Fields)
	}
	if capacity, ok := tables[0].Fields[store.FieldCapacity].(int); !ok || capacity != defaultTableCapacity {
		t.Fatalf("expected default capacity %d, got %v", defaultTableCapacity, tables[0].Fields[store.FieldCapacity])
	}

	// A second reservation at the same table reuses it.
	rr = env.do(t, http.MethodPost, "/v1/reservations", bearer, map[string]any{
		"name":         "Martin",
		"table_number": "12",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	tables, _ = env.store.List(context.Background(), store.Tables)
	if len(tables) != 1 {
		t.Fatalf("table should not be provisioned twice, got %d records", len(tables))
	}
}

func TestReservationSeatsDefaultAndBounds(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/reservations", bearer, map[string]any{
		"name":         "Solo",
		"table_number": "1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	recs, _ := env.store.List(context.Background(), store.Reservations)
	if len(recs) != 1 {
		t.Fatalf("expected one reservation, got %d", len(recs))
	}
	if seats, ok := recs[0].Fields["seats"].(int); !ok || seats != 1 {
		t.Fatalf("expected seats to default to 1, got %v", recs[0].Fields["seats"])
	}

	rr = env.do(t, http.MethodPost, "/v1/reservations", bearer, map[string]any{
		"name":         "Bus",
		"table_number": "1",
		"seats":        200,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range seats, got %d", rr.Code)
	}
}

func TestVolunteerCreatesReservation(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	bearer := env.tokenFor(t, "recV1", policy.RoleVolunteer, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/reservations", bearer, map[string]any{
		"name":         "Walk-in",
		"table_number": "3",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListingDropsRecordsWithoutTenant(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-a")
	env.store.Seed(store.Participants, "recP1", map[string]any{
		store.FieldName:       "Scoped",
		store.FieldTenantCode: "ASBL-A",
	})
	env.store.Seed(store.Participants, "recP2", map[string]any{
		store.FieldName: "Orphan",
	})
	// Dangling reference resolves to nothing and is dropped too.
	env.store.Seed(store.Participants, "recP3", map[string]any{
		store.FieldName:      "Dangling",
		store.FieldTenantRef: []any{"recGone"},
	})
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodGet, "/v1/participants", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	items := decodeBody(t, rr)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("records without a resolvable tenant must be dropped, got %d items", len(items))
	}
}

func TestTablesReadOnly(t *testing.T) {
	env := newTestEnv(t)
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodPost, "/v1/tables", bearer, map[string]any{"table_number": "9"})
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("expected Allow: GET, got %q", rr.Header().Get("Allow"))
	}
}

func TestListingStoreOutage(t *testing.T) {
	env := newFailingEnv(t)
	bearer := env.tokenFor(t, "recT1", policy.RoleAdmin, "ASBL-A")

	rr := env.do(t, http.MethodGet, "/v1/reservations", bearer, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("an outage must surface as 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

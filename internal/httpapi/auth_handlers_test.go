package httpapi

import (
	"net/http"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"reservo.org/internal/store"
)

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-secret")

	rr := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"code": "admin-secret",
		"role": "admin",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["token"] == "" || body["token"] == nil {
		t.Fatalf("expected a token in the response")
	}
	ident, ok := body["identity"].(map[string]any)
	if !ok {
		t.Fatalf("expected identity payload, got %v", body)
	}
	if ident["role"] != "admin" || ident["tenant_id"] != "ASBL-A" || ident["id"] != "recT1" {
		t.Fatalf("unexpected identity: %v", ident)
	}

	// The issued token must authenticate.
	rr = env.do(t, http.MethodGet, "/v1/auth/whoami", body["token"].(string), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("issued token rejected: %d %s", rr.Code, rr.Body.String())
	}
}

func TestVolunteerLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-secret")
	env.store.Seed(store.Volunteers, "recV1", map[string]any{
		store.FieldName:          "Anna",
		store.FieldVolunteerCode: "vol-123",
		store.FieldTenantCode:    "ASBL-A",
	})

	rr := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"code": "vol-123",
		"role": "volunteer",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	ident := decodeBody(t, rr)["identity"].(map[string]any)
	if ident["role"] != "volunteer" || ident["tenant_id"] != "ASBL-A" || ident["name"] != "Anna" {
		t.Fatalf("unexpected identity: %v", ident)
	}
}

func TestVolunteerLoginViaTenantReference(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-secret")
	env.store.Seed(store.Volunteers, "recV1", map[string]any{
		store.FieldName:          "Boris",
		store.FieldVolunteerCode: "vol-ref",
		store.FieldTenantRef:     []any{"recT1"},
	})

	rr := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"code": "vol-ref",
		"role": "volunteer",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	ident := decodeBody(t, rr)["identity"].(map[string]any)
	if ident["tenant_id"] != "ASBL-A" {
		t.Fatalf("expected tenant resolved through reference, got %v", ident)
	}
}

func TestLoginUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenant(t, "recT1", "ASBL-A", "admin-secret")

	for _, role := range []string{"admin", "volunteer"} {
		rr := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
			"code": "no-such-code",
			"role": role,
		})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", role, rr.Code)
		}
		if body := decodeBody(t, rr); body["error"] != "invalid access code" {
			t.Fatalf("%s: unexpected error message: %v", role, body)
		}
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing code", map[string]any{"role": "admin"}},
		{"missing role", map[string]any{"code": "x"}},
		{"bad role", map[string]any{"code": "x", "role": "superadmin"}},
	}
	for _, tc := range cases {
		rr := env.do(t, http.MethodPost, "/v1/auth/login", "", tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, rr.Code, rr.Body.String())
		}
	}
}

func TestLoginMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/v1/auth/login", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow: POST, got %q", rr.Header().Get("Allow"))
	}
}

func TestVolunteerLoginWithoutTenantFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.store.Seed(store.Volunteers, "recOrphan", map[string]any{
		store.FieldName:          "Orphan",
		store.FieldVolunteerCode: "vol-orphan",
	})

	rr := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"code": "vol-orphan",
		"role": "volunteer",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unresolved tenant, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["error"] != "account is not attached to an organization" {
		t.Fatalf("unexpected error message: %v", body)
	}
}

func TestLoginStoreOutageIsNotADenial(t *testing.T) {
	env := newFailingEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"code": "admin-secret",
		"role": "admin",
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSuperadminLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/superadmin-login", "", map[string]any{
		"password": "sup3r-pass",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	bearer, _ := body["token"].(string)
	if bearer == "" {
		t.Fatalf("expected a token")
	}

	rr = env.do(t, http.MethodGet, "/v1/auth/whoami", bearer, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("whoami with superadmin token: %d", rr.Code)
	}
	who := decodeBody(t, rr)
	if who["role"] != "superadmin" {
		t.Fatalf("expected superadmin role, got %v", who)
	}
	if _, present := who["tenant_id"]; present {
		t.Fatalf("superadmin token must not carry a tenant: %v", who)
	}
}

func TestSuperadminLoginBadPassword(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/auth/superadmin-login", "", map[string]any{
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestVerifySuperadminPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	api := &API{superadminPassword: string(hash)}
	if !api.verifySuperadminPassword("letmein") {
		t.Fatalf("bcrypt comparison should succeed")
	}
	if api.verifySuperadminPassword("wrong") {
		t.Fatalf("bcrypt comparison should fail for a wrong password")
	}
	api.superadminPassword = "plain-value"
	if !api.verifySuperadminPassword("plain-value") {
		t.Fatalf("literal comparison should succeed")
	}
	if api.verifySuperadminPassword("") {
		t.Fatalf("empty presented password must never verify")
	}
}

package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"reservo.org/internal/audit"
	"reservo.org/internal/identity"
	"reservo.org/internal/obs"
	"reservo.org/internal/policy"
	"reservo.org/internal/store"
	"reservo.org/internal/token"
)

type loginRequest struct {
	Code string `json:"code" validate:"required"`
	Role string `json:"role" validate:"required,oneof=admin volunteer"`
}

type superadminLoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type identityPayload struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	Name     string `json:"name,omitempty"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Identity  *identityPayload `json:"identity,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.validateRequest(w, r, req) {
		return
	}
	role, err := policy.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "role must be admin or volunteer")
		return
	}

	id, err := a.resolver.ResolveByAccessCode(r.Context(), req.Code, role)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNoIdentity):
			obs.AuthDenial("bad_credentials")
			_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{"role": req.Role})
			writeError(w, r, http.StatusUnauthorized, "invalid access code")
		case errors.Is(err, identity.ErrTenantUnresolved):
			// The identity exists but cannot be scoped; authenticating it
			// would leave the tenant check meaningless.
			obs.AuthDenial("bad_credentials")
			_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{
				"role":   req.Role,
				"reason": "tenant_unresolved",
			})
			writeError(w, r, http.StatusUnauthorized, "account is not attached to an organization")
		case errors.Is(err, store.ErrUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "identity store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	signed, expiresAt, err := a.codec.Issue(id.SubjectID, id.Role, id.TenantID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"subject_id": id.SubjectID,
		"role":       string(id.Role),
		"tenant_id":  id.TenantID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		Identity: &identityPayload{
			ID:       id.SubjectID,
			Role:     string(id.Role),
			TenantID: id.TenantID,
			Name:     id.Name,
		},
	})
}

func (a *API) handleSuperadminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req superadminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.validateRequest(w, r, req) {
		return
	}

	if !a.verifySuperadminPassword(req.Password) {
		obs.AuthDenial("bad_credentials")
		_ = audit.LogEvent(r.Context(), "auth.superadmin.denied", nil)
		writeError(w, r, http.StatusUnauthorized, "invalid password")
		return
	}

	signed, expiresAt, err := a.codec.Issue("superadmin", policy.RoleSuperadmin, "")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.superadmin.login", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{Token: signed, ExpiresAt: expiresAt})
}

// verifySuperadminPassword accepts either a bcrypt hash or an opaque
// literal as the configured value; literals are compared in constant time.
func (a *API) verifySuperadminPassword(presented string) bool {
	configured := a.superadminPassword
	if configured == "" || presented == "" {
		return false
	}
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

func (a *API) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	payload := map[string]any{
		"subject_id": claims.RegisteredClaims.Subject,
		"role":       string(claims.Role),
		"issued_at":  claims.IssuedAt.Time,
		"expires_at": claims.ExpiresAt.Time,
	}
	if claims.TenantID != "" {
		payload["tenant_id"] = claims.TenantID
	}
	writeJSON(w, http.StatusOK, payload)
}

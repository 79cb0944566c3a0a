package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"reservo.org/internal/obs"
	"reservo.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/superadmin-login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the bearer token on every non-public request and
// attaches the claims to the context. The login endpoints are the trust
// boundary's entry points, not its enforcement points, so they bypass
// this entirely.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.AuthDenial("token_missing")
			w.Header().Set("WWW-Authenticate", `Bearer realm="reservo"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.codec.Verify(raw)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="reservo"`)
			switch {
			case errors.Is(err, token.ErrTokenExpired):
				obs.AuthDenial("token_expired")
				writeErrorDetails(w, r, http.StatusUnauthorized, "token expired", "log in again to obtain a fresh token")
			case errors.Is(err, token.ErrTokenMissing):
				obs.AuthDenial("token_missing")
				writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			default:
				obs.AuthDenial("token_malformed")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		ctx := token.ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

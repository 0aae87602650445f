package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"auditoria.org/internal/auth"
	"auditoria.org/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/recover",
	"/api/auth/reset-password",
	"/healthz",
	"/readyz",
	"/metrics",
	"/",
}

// withAuth authenticates every non-public request: the bearer token proves
// identity, then the principal is re-resolved from storage so role changes
// take effect without waiting for token expiry.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
			return
		}
		claims, err := a.issuer.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid token")
			return
		}
		principal, err := a.svc.Auth.Me(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, rbac.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "unknown account")
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternal, "authentication error")
			return
		}
		if principal.User.Status != rbac.UserStatusActive {
			writeError(w, http.StatusForbidden, codeForbidden, "account disabled")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// principal returns the authenticated principal or writes 401 and reports
// false.
func principal(w http.ResponseWriter, r *http.Request) (rbac.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
		return rbac.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

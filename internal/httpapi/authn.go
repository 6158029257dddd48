package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"agentgrid.io/internal/access"
	"agentgrid.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller returns the authenticated identity or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (access.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return access.Identity{}, false
	}
	return id, true
}

// requireAdmin writes a 403 unless the caller holds an admin level.
func requireAdmin(w http.ResponseWriter, r *http.Request) (access.Identity, bool) {
	id, ok := caller(w, r)
	if !ok {
		return access.Identity{}, false
	}
	if !id.Level.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "admin level required")
		return access.Identity{}, false
	}
	return id, true
}

// companyScoped enforces that company admins act only inside their own
// organization. Network and super admins pass through.
func companyScoped(w http.ResponseWriter, r *http.Request, id access.Identity, companyID string) bool {
	if id.Level == access.LevelCompanyAdmin && id.OrganizationID != companyID {
		writeError(w, r, http.StatusForbidden, "company admins manage their own organization only")
		return false
	}
	return true
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

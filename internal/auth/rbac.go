package auth

import (
	"net/http"
	"slices"
)

type Permission string

const (
	PermSessionsRead  Permission = "sessions:read"
	PermSessionsWrite Permission = "sessions:write"
	PermQuery         Permission = "query"
	PermAdminRead     Permission = "admin:read"
	PermWildcard      Permission = "*"
)

// RequirePermission rejects requests whose token does not grant perm. It must
// run after JWTMiddleware.Authenticate.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no claims in context")
				return
			}
			if !claims.Has(perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (c *Claims) Has(perm Permission) bool {
	return slices.ContainsFunc(c.Permissions, func(p string) bool {
		return Permission(p) == PermWildcard || Permission(p) == perm
	})
}

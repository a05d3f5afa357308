package middleware

import (
	"net/http"

	"patentvault/internal/models"
)

// AdminMiddleware gates routes on the administrative principal. The system
// has exactly one admin identity, fixed at startup; there is no role table.
type AdminMiddleware struct {
	admin models.Principal
}

// NewAdminMiddleware creates a new admin middleware
func NewAdminMiddleware(admin models.Principal) *AdminMiddleware {
	return &AdminMiddleware{admin: admin}
}

// RequireAdmin rejects requests from any principal other than the admin.
// Must run after Authenticate. The engine re-checks the role on every
// operation; this just fails fast with the right status code.
func (m *AdminMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if p != m.admin {
			respondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"patentvault/internal/auth"
	"patentvault/internal/models"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	NameKey      contextKey = "name"
)

// AuthMiddleware validates JWT tokens
type AuthMiddleware struct {
	authService *auth.Service
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate validates the JWT token and adds the principal to the context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondWithError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := m.authService.ValidateToken(parts[1])
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, claims.Principal)
		ctx = context.WithValue(ctx, NameKey, claims.Name)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal retrieves the caller's principal from the request context
func GetPrincipal(r *http.Request) (models.Principal, bool) {
	p, ok := r.Context().Value(PrincipalKey).(models.Principal)
	return p, ok
}

// GetName retrieves the caller's account name from the request context
func GetName(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(NameKey).(string)
	return name, ok
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opsmates/agentcore/internal/api/response"
	"github.com/opsmates/agentcore/internal/authz"
	"github.com/opsmates/agentcore/internal/security"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	orgIDKey     contextKey = "organizationID"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager    *security.JWTManager
	internalToken string
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *security.JWTManager, internalToken string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:    jwtManager,
		internalToken: internalToken,
	}
}

// Authenticate validates the JWT token and builds the caller principal
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Error(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.Error(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := m.jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(w, "invalid or expired token")
			return
		}

		principal := authz.Principal{
			UserID:      claims.UserID,
			Email:       claims.Email,
			Memberships: claims.Organizations,
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticateInternal validates the shared service token and mints the
// internal principal. These routes must never be reachable from a public
// network path.
func (m *AuthMiddleware) AuthenticateInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Internal-Token")
		if m.internalToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(m.internalToken)) != 1 {
			response.Error(w, http.StatusUnauthorized, "invalid internal token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, authz.InternalPrincipal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal gets the caller principal from context
func GetPrincipal(ctx context.Context) (authz.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(authz.Principal)
	return principal, ok
}

// GetOrganizationID gets the organization ID from context
func GetOrganizationID(ctx context.Context) (uuid.UUID, bool) {
	orgID, ok := ctx.Value(orgIDKey).(uuid.UUID)
	return orgID, ok
}

// OrganizationContext extracts the organization ID from the URL
func OrganizationContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgIDStr := chi.URLParam(r, "orgID")
		if orgIDStr == "" {
			response.Error(w, http.StatusBadRequest, "missing organization ID")
			return
		}

		orgID, err := uuid.Parse(orgIDStr)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "invalid organization ID")
			return
		}

		ctx := context.WithValue(r.Context(), orgIDKey, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

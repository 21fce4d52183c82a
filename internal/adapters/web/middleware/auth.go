package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/services/token"
)

type contextKey string

// ClaimsContextKey carries the verified token claims through the request.
const ClaimsContextKey contextKey = "claims"

// AuthMiddleware ensures the request carries a valid bearer token of the
// given scope and stores its claims in the request context.
func AuthMiddleware(tokens *token.Service, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw string
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				raw = strings.TrimPrefix(authHeader, "Bearer ")
			}
			if raw == "" {
				if cookie, err := r.Cookie("access_token"); err == nil {
					raw = cookie.Value
				}
			}
			if raw == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Verify(raw, scope)
			if err != nil {
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom extracts the verified claims placed by AuthMiddleware.
func ClaimsFrom(r *http.Request) *token.Claims {
	claims, _ := r.Context().Value(ClaimsContextKey).(*token.Claims)
	return claims
}

// RoleMiddleware checks the claim role against the required role.
// Admin satisfies every requirement.
func RoleMiddleware(required domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r)
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !hasPermission(domain.Role(claims.Role), required) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasPermission(userRole, required domain.Role) bool {
	if userRole == domain.RoleAdmin {
		return true
	}
	return required == domain.RoleUser
}

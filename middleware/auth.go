package middleware

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"proxy-admin/utils"
)

// Key type for context
type contextKey string

const UserContextKey = contextKey("user")

// TokenParser validates a bearer token
type TokenParser interface {
	ParseJWT(tokenStr string) (*utils.Claims, error)
}

// AuthMiddleware verifies JWT tokens and attaches the operator's claims to
// the context
func AuthMiddleware(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteError(w, http.StatusUnauthorized, "Authorization header missing")
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				utils.WriteError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims, err := tokens.ParseJWT(parts[1])
			if err != nil {
				log.WithError(err).WithField("request_id", RequestID(r.Context())).Warn("rejected token")
				utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware ensures that the caller has admin privileges
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok || claims.Role != utils.RoleAdmin {
			utils.WriteError(w, http.StatusForbidden, "Forbidden: Admins only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFrom returns the claims AuthMiddleware attached
func ClaimsFrom(ctx context.Context) (*utils.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*utils.Claims)
	return claims, ok
}

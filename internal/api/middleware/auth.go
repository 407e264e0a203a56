package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/api"
	"github.com/cloo-solutions/policyrag/internal/domain"
)

type contextKey string

const AdminKey contextKey = "admin"

// AdminAuth admits requests carrying the configured bearer token. An empty
// token disables the protected routes entirely.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				api.Error(w, http.StatusForbidden, "admin endpoints are disabled")
				return
			}

			presented, status, msg := bearerToken(r)
			if status != 0 {
				api.Error(w, status, msg)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				api.HandleError(w, domain.ErrInvalidAdminToken)
				return
			}

			markAdmin(r.Context())
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AdminKey, true)))
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, int, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", http.StatusUnauthorized, "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", http.StatusUnauthorized, "invalid authorization format"
	}
	return strings.TrimSpace(token), 0, ""
}

// IsAdmin reports whether the request passed AdminAuth.
func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(AdminKey).(bool)
	return admin
}

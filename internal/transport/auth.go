package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cloudportal/projectd/internal/domain/project"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type userKey struct{}

// UserResolver resolves the acting user from a bearer token.
type UserResolver interface {
	ResolveToken(ctx context.Context, token string) (*project.User, error)
}

// UserFromContext returns the authenticated user, if present.
func UserFromContext(ctx context.Context) (*project.User, bool) {
	user, ok := ctx.Value(userKey{}).(*project.User)
	return user, ok && user != nil
}

// WithUser stores the acting user in ctx.
func WithUser(ctx context.Context, user *project.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			user, err := resolver.ResolveToken(r.Context(), token)
			if err != nil || user == nil {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// StaticUserMiddleware authenticates every request as user. Used when auth
// is disabled.
func StaticUserMiddleware(user *project.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin rejects users without the admin flag.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jobtrackhq/jobtrack/internal/app/domain/user"
	"github.com/jobtrackhq/jobtrack/internal/auth"
	"github.com/jobtrackhq/jobtrack/pkg/logger"
)

type contextKey string

const userContextKey contextKey = "authenticated-user"

// CurrentUser extracts the authenticated user placed in the context by the
// auth middleware.
func CurrentUser(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userContextKey).(user.User)
	return u, ok
}

// WithUser returns a context carrying the user. Exposed for handler tests.
func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// Auth guards requests with bearer-token authentication. It shares its
// verifier with the realtime handshake so both entry points resolve tokens
// with identical semantics.
type Auth struct {
	verifier *auth.Verifier
	log      *logger.Logger
}

// NewAuth creates the authentication middleware.
func NewAuth(verifier *auth.Verifier, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.NewDefault("middleware")
	}
	return &Auth{verifier: verifier, log: log}
}

// Handler rejects requests without a valid bearer token and stores the
// resolved user in the request context.
func (m *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "invalid Authorization header format")
			return
		}

		u, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			if !auth.IsAuthError(err) {
				m.log.WithError(err).Error("token verification failed")
			}
			unauthorized(w, "authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireAdmin rejects requests whose authenticated user is not an admin.
// Must run after the auth middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := CurrentUser(r.Context())
		if !ok {
			unauthorized(w, "authentication error")
			return
		}
		if !u.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}

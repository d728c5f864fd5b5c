package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-notification-relay/internal/model"
)

type contextKey string

const userContextKey contextKey = "auth.user"

// UserFromContext returns the authenticated user placed there by Middleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok
}

// UserLoader resolves a token subject to a stored user.
type UserLoader interface {
	UserByUsername(ctx context.Context, username string) (*model.User, error)
}

// Middleware validates bearer tokens and attaches the user to the request
// context. Inactive users are rejected even if their token is still valid.
type Middleware struct {
	secret string
	users  UserLoader
	logger *slog.Logger
}

func NewMiddleware(secret string, users UserLoader, logger *slog.Logger) *Middleware {
	return &Middleware{
		secret: secret,
		users:  users,
		logger: logger.With("component", "auth"),
	}
}

// RequireUser wraps a handler so it only runs for authenticated active users.
func (m *Middleware) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// RequireAdmin additionally requires the admin flag.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		if !user.IsAdmin {
			response.WriteJSONError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		response.WriteJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}

	username, err := ParseAccessToken(m.secret, token)
	if err != nil {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid or expired token")
		return nil, false
	}

	user, err := m.users.UserByUsername(r.Context(), username)
	if err != nil {
		m.logger.Warn("token subject has no stored user", "username", username)
		response.WriteJSONError(w, http.StatusUnauthorized, "unknown user")
		return nil, false
	}
	if !user.IsActive {
		response.WriteJSONError(w, http.StatusForbidden, "user is deactivated")
		return nil, false
	}
	return user, true
}

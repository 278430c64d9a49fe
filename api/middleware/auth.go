package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

// TokenVerifier resolves an access token to the calling identity.
type TokenVerifier interface {
	Authenticate(token string) (twin.Identity, error)
}

// BearerToken returns the token from the Authorization header, or "".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}

// Auth validates a bearer token and seeds the request context with the caller.
func Auth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Authentication credentials were not provided."))
				return
			}

			id, err := verifier.Authenticate(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    id.UserID,
					"actor_role": string(id.Role),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller when a valid token is present and lets
// anonymous requests through.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if id, err := verifier.Authenticate(token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

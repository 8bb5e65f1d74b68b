package middleware

import (
	"context"
	"net/http"

	"github.com/potholewatch/server/internal/pipeline"
)

type contextKey string

const identityKey contextKey = "identity"

// ErrorResponder writes an error response for err
type ErrorResponder func(w http.ResponseWriter, err error)

// AuthMiddleware runs the pipeline gate and attaches the proven identity to the request context
func AuthMiddleware(gate *pipeline.Gate, respond ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gate.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				respond(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the identity attached by AuthMiddleware
func GetIdentity(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey).(string)
	return identity, ok && identity != ""
}

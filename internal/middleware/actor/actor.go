// Package actor resolves the calling actor from the Authorization header and
// stores it in the request context. Missing or invalid tokens yield an
// anonymous actor; denying anonymous access is each handler's decision.
package actor

import (
	"context"
	"net/http"
	"strings"

	"account_service/internal/lib/jwt"
	"account_service/internal/models"
)

type ctxKey struct{}

func Middleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var act models.Actor

			header := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				if parsed, err := jwt.ParseActor(token, jwtSecret); err == nil {
					act = parsed
				}
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), act)))
		})
	}
}

func WithActor(ctx context.Context, act models.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, act)
}

func FromContext(ctx context.Context) models.Actor {
	act, _ := ctx.Value(ctxKey{}).(models.Actor)

	return act
}

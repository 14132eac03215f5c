package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/mobile-money/internal/auth"
	"github.com/josh-kwaku/mobile-money/internal/handler"
	"github.com/josh-kwaku/mobile-money/internal/logging"
)

// Auth validates the bearer token and puts the caller's actor into the
// request context, along with a logger tagged with the actor.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			actor := claims.Actor()
			ctx := auth.ContextWithActor(r.Context(), actor)
			ctx = logging.With(ctx, "actor_id", actor.ID, "role", actor.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

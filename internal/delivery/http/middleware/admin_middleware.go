package middleware

import (
	"net/http"
	"slices"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/utils"
)

// RequireActor admits only the listed actor kinds.
// MUST be used AFTER AuthMiddleware.
func RequireActor(kinds ...domain.ActorKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: No actor found in context")
				return
			}
			if !slices.Contains(kinds, actor.Kind) {
				utils.WriteError(w, http.StatusForbidden, "Forbidden: "+string(actor.Kind)+" may not perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware ensures the caller acts for the platform.
// MUST be used AFTER AuthMiddleware.
func AdminMiddleware(next http.Handler) http.Handler {
	return RequireActor(domain.ActorSystem)(next)
}

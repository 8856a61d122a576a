package middleware

import (
	"context"
	"net/http"

	"caconnect-backend/internal/domain"
	"caconnect-backend/pkg/logger"
	"caconnect-backend/pkg/utils"

	"github.com/google/uuid"
)

// AuthMiddleware resolves the bearer token into a domain.Actor on the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := utils.ExtractClaims(r)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: Invalid or missing token")
			return
		}

		kind, ok := domain.ParseActorKind(claims.Role)
		if !ok {
			utils.WriteError(w, http.StatusForbidden, "Forbidden: Unknown role")
			return
		}
		id, err := uuid.Parse(claims.UserID)
		if err != nil && kind != domain.ActorSystem {
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: Invalid subject")
			return
		}

		// Token claims are trusted as-is to avoid a store hit on every request.
		actor := &domain.Actor{Kind: kind, ID: id}
		l := logger.WithActor(*logger.WithContext(r.Context()), actor.String())
		ctx := context.WithValue(r.Context(), domain.ActorContextKey, actor)
		ctx = logger.NewContext(ctx, &l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFrom returns the authenticated actor.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(domain.ActorContextKey).(*domain.Actor)
	if !ok || actor == nil {
		return domain.Actor{}, false
	}
	return *actor, true
}

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/handlers/actorctx"
	"github.com/nkiryanov/walletledger/internal/handlers/render"
)

type authService interface {
	Authenticate(ctx context.Context, r *http.Request) (uuid.UUID, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, err := as.Authenticate(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := actorctx.New(r.Context(), actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

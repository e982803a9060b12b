package actorctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const actorKey ctxKey = "actor"

// Create a new context with the acting user id
func New(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// Extract the acting user id from the context
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(actorKey).(uuid.UUID)
	return id, ok
}

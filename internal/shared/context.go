package shared

import "context"

type contextKey string

const actorKey contextKey = "actor"

// ContextWithActor stores the authenticated administrator id on the context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the administrator id set by the auth middleware,
// or zero when the request was not authenticated.
func ActorFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(actorKey).(int64); ok {
		return id
	}
	return 0
}

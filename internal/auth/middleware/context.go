package auth

import "context"

type ctxKey string

const ctxKeyActor ctxKey = "actor"

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actorID)
}

// ActorFromContext returns the current actor id, or "" when unauthenticated.
func ActorFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyActor).(string); ok {
		return s
	}
	return ""
}

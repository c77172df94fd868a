package workflow

import "context"

type actorContextKey struct{}

// ContextWithActor returns a context whose operations stamp the given
// principal on the events they emit, overriding the manager default for that
// call only. Managers are shared across callers; per-request attribution
// must never mutate the manager itself.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func actorFromContext(ctx context.Context, fallback string) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}

	return fallback
}

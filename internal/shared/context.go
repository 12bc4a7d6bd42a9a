package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated principal acting on the core.
// Authentication itself happens upstream; the core only records who acted.
type Actor struct {
	UserID int64
}

// ContextWithActor stores the acting user in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user from context.
// A zero Actor means the caller was a system process.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

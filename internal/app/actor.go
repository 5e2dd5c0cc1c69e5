package app

import (
	"context"
	"strings"
)

// actorContextKey stores the authenticated caller id.
type actorContextKey struct{}

// WithActor attaches the authenticated user id to context.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(userID))
}

// ActorFromContext returns the authenticated user id when present.
func ActorFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(actorContextKey{}).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// requireActor returns the caller id or ErrUnauthenticated.
func requireActor(ctx context.Context) (string, error) {
	userID, ok := ActorFromContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

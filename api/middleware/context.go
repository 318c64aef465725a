package middleware

import (
	"context"

	"github.com/angelmondragon/pawpass-backend/pkg/auth"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/google/uuid"
)

type contextKey string

const (
	ctxActor       contextKey = "actor"
	ctxCartSession contextKey = "cart_session"
)

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	if !ok || actor.IsZero() {
		return auth.Actor{}, false
	}
	return actor, true
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.Role {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Role
	}
	return ""
}

// WithActor injects an actor into the context.
func WithActor(ctx context.Context, userID uuid.UUID, role enums.Role) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, auth.Actor{UserID: userID, Role: role})
}

// CartSessionFromContext returns the cart-session identifier seeded by CartSession.
func CartSessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCartSession).(string); ok {
		return v
	}
	return ""
}

// WithCartSession injects a cart-session identifier into the context.
func WithCartSession(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCartSession, sessionID)
}

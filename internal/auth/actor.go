// Package auth models the authenticated actor supplied by the identity
// provider and makes it available through the request context.
package auth

import "context"

// Role is the actor's role as asserted by the identity provider.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// Actor is the authenticated caller for a request.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor has admin privileges.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type ctxKey string

const actorKey ctxKey = "caredial.actor"

// WithActor stores the actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.ID != ""
}

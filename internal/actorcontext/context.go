package actorcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Role is the coarse role of the caller placing or managing a booking.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Actor identifies who is acting on a request.
// ClientID is the client account the user books for by default; zero for
// staff accounts.
type Actor struct {
	UserID   snowflake.ID
	ClientID snowflake.ID
	Role     Role
}

// IsSelf reports whether clientID is the actor's own client account.
func (a Actor) IsSelf(clientID snowflake.ID) bool {
	return a.ClientID != 0 && a.ClientID == clientID
}

// Subject returns the authorization subject for the actor's role.
func (a Actor) Subject() string {
	return "role:" + string(a.Role)
}

type actorKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext returns the actor from context, if set.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.UserID == 0 {
		return Actor{}, false
	}
	return actor, true
}

// ParseRole maps a header value onto a known role. Unknown values map to client.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleClient
	}
}

// ParseUserID parses a snowflake id from a header or path value.
func ParseUserID(value string) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

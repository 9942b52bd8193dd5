package requestdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/edulight/edulight-backend/internal/types"
)

// Actor is the already-resolved identity the core receives after the auth
// middleware runs. The core never authenticates; it only checks roles.
type Actor struct {
	UserID  uuid.UUID
	Role    string
	GroupID *uuid.UUID
}

func (a Actor) IsTeacher() bool { return a.Role == types.RoleTeacher }
func (a Actor) IsStudent() bool { return a.Role == types.RoleStudent }
func (a Actor) IsAdmin() bool   { return a.Role == types.RoleAdmin }

type ctxKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

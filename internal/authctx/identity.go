// Package authctx carries the authenticated identity of a request through
// context.Context, the same pattern the teacher's auth package uses for its
// per-tenant identity.
package authctx

import (
	"context"

	"github.com/insforge/core/internal/dbsession"
)

// Identity describes who is making the current request, as resolved by
// internal/authhttp's auth middleware from a verified access JWT.
type Identity struct {
	Subject string
	Email   string
	Role    string
}

// DBIdentity converts to the RLS identity dbsession.Run expects.
func (id *Identity) DBIdentity() dbsession.Identity {
	if id == nil {
		return dbsession.Identity{Role: dbsession.RoleAnon}
	}
	return dbsession.Identity{Role: id.Role, UserID: id.Subject}
}

type ctxKey struct{}

// NewContext returns a context carrying id.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or an anonymous identity
// if none was stored (unauthenticated or anon-JWT requests).
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	if id == nil {
		return &Identity{Role: dbsession.RoleAnon}
	}
	return id
}

// roleLevel orders roles from least to most privileged, mirroring the
// teacher's RBAC hierarchy.
var roleLevel = map[string]int{
	dbsession.RoleAnon:          0,
	dbsession.RoleAuthenticated: 1,
	dbsession.RoleService:       2,
	dbsession.RoleAdmin:         3,
}

// HasMinRole reports whether id's role is at least as privileged as min.
func (id *Identity) HasMinRole(min string) bool {
	if id == nil {
		return roleLevel[dbsession.RoleAnon] >= roleLevel[min]
	}
	return roleLevel[id.Role] >= roleLevel[min]
}

package authctx

import (
	"context"
	"testing"

	"github.com/insforge/core/internal/dbsession"
)

func TestFromContextDefaultsToAnon(t *testing.T) {
	id := FromContext(context.Background())
	if id.Role != dbsession.RoleAnon {
		t.Errorf("Role = %q, want %q", id.Role, dbsession.RoleAnon)
	}
}

func TestNewContextRoundTrips(t *testing.T) {
	want := &Identity{Subject: "user-1", Email: "a@b.com", Role: dbsession.RoleAuthenticated}
	ctx := NewContext(context.Background(), want)

	got := FromContext(ctx)
	if got != want {
		t.Fatalf("FromContext returned a different identity")
	}
}

func TestHasMinRoleOrdering(t *testing.T) {
	tests := []struct {
		role string
		min  string
		want bool
	}{
		{dbsession.RoleAnon, dbsession.RoleAuthenticated, false},
		{dbsession.RoleAuthenticated, dbsession.RoleAuthenticated, true},
		{dbsession.RoleService, dbsession.RoleAuthenticated, true},
		{dbsession.RoleAdmin, dbsession.RoleService, true},
		{dbsession.RoleAuthenticated, dbsession.RoleAdmin, false},
	}

	for _, tt := range tests {
		id := &Identity{Role: tt.role}
		if got := id.HasMinRole(tt.min); got != tt.want {
			t.Errorf("role=%s min=%s: HasMinRole() = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestHasMinRoleOnNilIdentity(t *testing.T) {
	var id *Identity
	if id.HasMinRole(dbsession.RoleAuthenticated) {
		t.Error("nil identity should not satisfy any role above anon")
	}
	if !id.HasMinRole(dbsession.RoleAnon) {
		t.Error("nil identity should satisfy the anon role")
	}
}

func TestDBIdentityConvertsFields(t *testing.T) {
	id := &Identity{Subject: "user-1", Role: dbsession.RoleAuthenticated}
	dbID := id.DBIdentity()
	if dbID.Role != dbsession.RoleAuthenticated || dbID.UserID != "user-1" {
		t.Errorf("DBIdentity() = %+v", dbID)
	}
}

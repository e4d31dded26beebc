// Package dbsession scopes a pooled PostgreSQL connection to the calling
// identity's row-level-security context for the lifetime of one operation,
// the same way PostgREST itself authorizes a request: by setting the
// session's role and JWT claims GUCs before running any SQL, inside a
// transaction so the settings never leak to the next pool checkout.
package dbsession

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Known RLS roles, mirroring the roles PostgREST's JWT `role` claim selects
// between.
const (
	RoleAnon          = "anon"
	RoleAuthenticated = "authenticated"
	RoleAdmin         = "project_admin"
	RoleService       = "service_role"
)

// Identity is the minimal claim set needed to reproduce a request's RLS
// context inside a direct database session (C9 subscribe/publish checks;
// the auth store and the SQL console run as the elevated service role).
type Identity struct {
	Role   string
	UserID string
}

// Run acquires a pooled connection, opens a transaction, sets `role` and
// `request.jwt.claims` for the duration of that transaction, and invokes fn
// with it. The transaction is committed on success and rolled back on error
// or panic-free return of an error from fn.
func Run(ctx context.Context, pool *pgxpool.Pool, id Identity, fn func(ctx context.Context, tx pgx.Tx) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := setSessionContext(ctx, tx, id); err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func setSessionContext(ctx context.Context, tx pgx.Tx, id Identity) error {
	role := id.Role
	if role == "" {
		role = RoleAnon
	}

	claims := map[string]string{"role": role}
	if id.UserID != "" {
		claims["sub"] = id.UserID
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshaling JWT claims: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true)", string(claimsJSON)); err != nil {
		return fmt.Errorf("setting request.jwt.claims: %w", err)
	}

	// set_config can't parameterize an identifier, but role names here are
	// drawn from the fixed constants above, never from request input.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ROLE %s", pgx.Identifier{role}.Sanitize())); err != nil {
		return fmt.Errorf("setting session role: %w", err)
	}

	return nil
}

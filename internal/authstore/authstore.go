// Package authstore is the database access layer for C6's Account and
// AccountProvider entities, grounded on the teacher's direct pgx usage in
// internal/auth/login.go (hand-written SQL, no ORM) but targeting a single
// `auth` schema instead of per-tenant schemas.
package authstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/dbsession"
)

// Account mirrors spec.md §3's Account entity.
type Account struct {
	ID            string
	Email         string
	PasswordHash  *string
	DisplayName   *string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AccountProvider mirrors spec.md §3's AccountProvider entity.
type AccountProvider struct {
	ID           string
	AccountID    string
	Provider     string
	ProviderID   string
	IdentityData []byte
	CreatedAt    time.Time
}

// Store wraps the application pool with auth-schema queries run under the
// service_role RLS context, since account management is a privileged
// operation regardless of which identity triggered it.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn inside a service_role-scoped transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return dbsession.Run(ctx, s.pool, dbsession.Identity{Role: dbsession.RoleService}, fn)
}

const uniqueViolation = "23505"

// CreateAccount inserts a new account row, failing with apperror.Conflict
// on an email uniqueness violation.
func (s *Store) CreateAccount(ctx context.Context, tx pgx.Tx, email string, passwordHash, displayName *string, emailVerified bool) (Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		INSERT INTO auth.accounts (email, password_hash, display_name, email_verified)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, display_name, email_verified, created_at, updated_at
	`, email, passwordHash, displayName, emailVerified).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, apperror.Conflict("an account with this email already exists")
		}
		return Account{}, fmt.Errorf("creating account: %w", err)
	}
	return a, nil
}

// FindByEmail looks up an account by its canonical email.
func (s *Store) FindByEmail(ctx context.Context, tx pgx.Tx, email string) (Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, email_verified, created_at, updated_at
		FROM auth.accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperror.NotFound("account not found")
		}
		return Account{}, fmt.Errorf("finding account by email: %w", err)
	}
	return a, nil
}

// FindByID looks up an account by id.
func (s *Store) FindByID(ctx context.Context, tx pgx.Tx, id string) (Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, email_verified, created_at, updated_at
		FROM auth.accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperror.NotFound("account not found")
		}
		return Account{}, fmt.Errorf("finding account by id: %w", err)
	}
	return a, nil
}

// SetEmailVerified flips email_verified to true for id.
func (s *Store) SetEmailVerified(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `UPDATE auth.accounts SET email_verified = true, updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces id's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, tx pgx.Tx, id, hash string) error {
	if _, err := tx.Exec(ctx, `UPDATE auth.accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash); err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	return nil
}

// ListAccounts returns up to limit accounts starting at offset, optionally
// filtered by a case-insensitive email/name substring search.
func (s *Store) ListAccounts(ctx context.Context, tx pgx.Tx, limit, offset int, search string) ([]Account, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, email, password_hash, display_name, email_verified, created_at, updated_at
		FROM auth.accounts
		WHERE $3 = '' OR email ILIKE '%' || $3 || '%' OR display_name ILIKE '%' || $3 || '%'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset, search)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAccounts cascades account deletion for every id given.
func (s *Store) DeleteAccounts(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `DELETE FROM auth.accounts WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("deleting accounts: %w", err)
	}
	return nil
}

// FindByProvider looks up an account by its linked (provider, providerId).
func (s *Store) FindByProvider(ctx context.Context, tx pgx.Tx, provider, providerID string) (Account, error) {
	var a Account
	err := tx.QueryRow(ctx, `
		SELECT a.id, a.email, a.password_hash, a.display_name, a.email_verified, a.created_at, a.updated_at
		FROM auth.accounts a
		JOIN auth.account_providers p ON p.account_id = a.id
		WHERE p.provider = $1 AND p.provider_id = $2
	`, provider, providerID).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperror.NotFound("account not linked to this provider identity")
		}
		return Account{}, fmt.Errorf("finding account by provider: %w", err)
	}
	return a, nil
}

// LinkProvider inserts an AccountProvider row; (provider, providerId) is
// unique, enforced by the schema.
func (s *Store) LinkProvider(ctx context.Context, tx pgx.Tx, accountID, provider, providerID string, identityData []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO auth.account_providers (account_id, provider, provider_id, identity_data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_id) DO NOTHING
	`, accountID, provider, providerID, identityData)
	if err != nil {
		return fmt.Errorf("linking oauth provider: %w", err)
	}
	return nil
}

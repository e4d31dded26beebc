// Package otp implements C4: one-time numeric codes and long hex tokens for
// email verification and password reset, each bound to (email, purpose) and
// verified inside the caller's own database transaction so the OTP
// consumption commits atomically with whatever state change it authorizes.
// Grounded on the teacher's bcrypt-adjacent verification style in
// internal/auth/login.go, adapted from password hashing to OTP hashing.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/insforge/core/internal/apperror"
)

// Purpose scopes an OTP to the operation it authorizes.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "VERIFY_EMAIL"
	PurposeResetPassword Purpose = "RESET_PASSWORD"
)

// Kind selects the OTP's shape.
type Kind string

const (
	KindNumericCode Kind = "numeric_code"
	KindHashToken   Kind = "hash_token"
)

// MaxAttempts is the verification attempt ceiling before an OTP is rejected
// outright, per spec.md §4.4.
const MaxAttempts = 5

// hashOTP returns the stored digest of a plaintext code/token; OTPs are
// never stored in cleartext, mirroring the teacher's password-hash discipline.
func hashOTP(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// GenerateNumericCode returns a uniformly random 6-digit decimal string.
func GenerateNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating numeric code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateHashToken returns 32 random bytes rendered as 64 hex characters.
func GenerateHashToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating hash token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create replaces any prior unexpired row for (email, purpose) with a fresh
// OTP of the given kind and returns its plaintext value and expiry.
func Create(ctx context.Context, tx pgx.Tx, email string, purpose Purpose, kind Kind, ttl time.Duration) (string, time.Time, error) {
	var plaintext string
	var err error
	switch kind {
	case KindNumericCode:
		plaintext, err = GenerateNumericCode()
	default:
		plaintext, err = GenerateHashToken()
	}
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(ttl)

	_, err = tx.Exec(ctx, `
		INSERT INTO auth.otps (email, purpose, otp_hash, expires_at, attempts)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (email, purpose) DO UPDATE
		SET otp_hash = EXCLUDED.otp_hash, expires_at = EXCLUDED.expires_at, attempts = 0
	`, email, string(purpose), hashOTP(plaintext), expiresAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storing OTP: %w", err)
	}

	return plaintext, expiresAt, nil
}

// VerifyWithCode locates the OTP row by (email, purpose), increments its
// attempt counter, and on a correct, unexpired, under-ceiling match deletes
// the row. Any other outcome fails with apperror.Invalid (surfaced to the
// HTTP layer as the InvalidOTP case spec.md §4.4 names).
func VerifyWithCode(ctx context.Context, tx pgx.Tx, email string, purpose Purpose, code string) error {
	var otpHash string
	var expiresAt time.Time
	var attempts int

	err := tx.QueryRow(ctx, `
		SELECT otp_hash, expires_at, attempts FROM auth.otps
		WHERE email = $1 AND purpose = $2
		FOR UPDATE
	`, email, string(purpose)).Scan(&otpHash, &expiresAt, &attempts)
	if err != nil {
		return apperror.Invalid("invalid or expired code")
	}

	if attempts >= MaxAttempts {
		return apperror.Invalid("too many attempts")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE auth.otps SET attempts = attempts + 1 WHERE email = $1 AND purpose = $2
	`, email, string(purpose)); err != nil {
		return fmt.Errorf("incrementing OTP attempts: %w", err)
	}

	if time.Now().After(expiresAt) {
		return apperror.Invalid("invalid or expired code")
	}

	if hashOTP(code) != otpHash {
		return apperror.Invalid("invalid or expired code")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM auth.otps WHERE email = $1 AND purpose = $2`, email, string(purpose)); err != nil {
		return fmt.Errorf("deleting consumed OTP: %w", err)
	}

	return nil
}

// VerifyWithToken locates an OTP by its hash across all emails for purpose,
// returning the associated email on success and deleting the row.
func VerifyWithToken(ctx context.Context, tx pgx.Tx, purpose Purpose, token string) (string, error) {
	var email string
	var expiresAt time.Time

	err := tx.QueryRow(ctx, `
		SELECT email, expires_at FROM auth.otps
		WHERE purpose = $1 AND otp_hash = $2
		FOR UPDATE
	`, string(purpose), hashOTP(token)).Scan(&email, &expiresAt)
	if err != nil {
		return "", apperror.Invalid("invalid or expired token")
	}

	if time.Now().After(expiresAt) {
		return "", apperror.Invalid("invalid or expired token")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM auth.otps WHERE purpose = $1 AND otp_hash = $2`, string(purpose), hashOTP(token)); err != nil {
		return "", fmt.Errorf("deleting consumed OTP: %w", err)
	}

	return email, nil
}

// ExchangeCodeForToken verifies code then immediately issues a fresh
// HASH_TOKEN under the same purpose, separating code-entry from the
// password-reset POST per spec.md §4.4.
func ExchangeCodeForToken(ctx context.Context, tx pgx.Tx, email string, purpose Purpose, code string, tokenTTL time.Duration) (string, time.Time, error) {
	if err := VerifyWithCode(ctx, tx, email, purpose, code); err != nil {
		return "", time.Time{}, err
	}
	return Create(ctx, tx, email, purpose, KindHashToken, tokenTTL)
}

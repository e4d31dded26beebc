// Package authsvc implements C6: account creation, password login,
// OAuth-identity linking, email verification, password reset, admin login,
// and user listing/deletion. Grounded on the teacher's internal/auth/login.go
// (bcrypt compare, cross-schema account lookup, session issuance) and
// vendor/github.com/wisbric/core/pkg/auth/session.go (refresh/CSRF cookie
// rotation, reproduced by internal/authhttp).
package authsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/authstore"
	"github.com/insforge/core/internal/oauthproviders"
	"github.com/insforge/core/internal/otp"
	"github.com/insforge/core/internal/telemetry"
	"github.com/insforge/core/internal/token"
)

const bcryptCost = 10

// EmailSender is the out-of-scope email-delivery collaborator, specified
// only at its interface per spec.md §1.
type EmailSender interface {
	SendVerification(ctx context.Context, email, codeOrLink, method string) error
	SendPasswordReset(ctx context.Context, email, codeOrLink, method string) error
}

// Config carries the subset of process configuration C6 needs.
type Config struct {
	RequireEmailVerification bool
	OTPDeliveryMethod        string // "code" or "link"
	AdminEmail               string
	AdminPassword            string
	PublicBaseURL            string
}

// Session is the result of any operation that authenticates a user.
type Session struct {
	User        authstore.Account
	AccessToken string
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	User                     *authstore.Account
	AccessToken              *string
	RequireEmailVerification bool
}

// Service implements C6's public contract.
type Service struct {
	store  *authstore.Store
	tokens *token.Service
	email  EmailSender
	cfg    Config
	policy PasswordPolicy
	logger *slog.Logger
}

// New constructs the auth service.
func New(store *authstore.Store, tokens *token.Service, email EmailSender, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: store, tokens: tokens, email: email, cfg: cfg, policy: DefaultPasswordPolicy, logger: logger}
}

// Register validates the password policy, hashes it with bcrypt, and
// inserts the account inside a single transaction.
func (s *Service) Register(ctx context.Context, email, password string, name *string) (RegisterResult, error) {
	if err := s.policy.Validate(password); err != nil {
		return RegisterResult{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hashing password: %w", err)
	}
	hashStr := string(hash)

	var account authstore.Account
	err = s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var txErr error
		account, txErr = s.store.CreateAccount(ctx, tx, email, &hashStr, name, !s.cfg.RequireEmailVerification)
		return txErr
	})
	if err != nil {
		return RegisterResult{}, err
	}

	if s.cfg.RequireEmailVerification {
		if sendErr := s.SendVerificationEmail(ctx, email); sendErr != nil {
			s.logger.Error("sending verification email during registration", "error", sendErr)
		}
		return RegisterResult{User: &account, RequireEmailVerification: true}, nil
	}

	accessToken, err := s.tokens.IssueAccess(account.ID, account.Email, token.RoleAuthenticated)
	if err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{User: &account, AccessToken: &accessToken, RequireEmailVerification: false}, nil
}

// Login bcrypt-compares the password and enforces the verification gate.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	var account authstore.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var txErr error
		account, txErr = s.store.FindByEmail(ctx, tx, email)
		return txErr
	})
	if err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("no_account").Inc()
		return Session{}, apperror.Unauthorized("invalid email or password")
	}

	if account.PasswordHash == nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("no_password").Inc()
		return Session{}, apperror.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(password)); err != nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
		return Session{}, apperror.Unauthorized("invalid email or password")
	}

	if s.cfg.RequireEmailVerification && !account.EmailVerified {
		telemetry.LoginAttemptsTotal.WithLabelValues("unverified").Inc()
		return Session{}, apperror.Forbidden("email not verified")
	}

	accessToken, err := s.tokens.IssueAccess(account.ID, account.Email, token.RoleAuthenticated)
	if err != nil {
		return Session{}, err
	}

	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return Session{User: account, AccessToken: accessToken}, nil
}

// SendVerificationEmail silently succeeds when the account is absent, to
// avoid leaking account existence (spec.md §4.6, §7).
func (s *Service) SendVerificationEmail(ctx context.Context, email string) error {
	var found bool
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, txErr := s.store.FindByEmail(ctx, tx, email)
		if txErr != nil {
			return nil //nolint:nilerr // account absence is intentionally swallowed below
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		kind := otp.KindNumericCode
		ttl := 15 * time.Minute
		if s.cfg.OTPDeliveryMethod == "link" {
			kind = otp.KindHashToken
			ttl = time.Hour
		}

		plaintext, _, err := otp.Create(ctx, tx, email, otp.PurposeVerifyEmail, kind, ttl)
		if err != nil {
			return err
		}

		value := plaintext
		if kind == otp.KindHashToken {
			value = fmt.Sprintf("%s/auth/verify-email?token=%s", s.cfg.PublicBaseURL, plaintext)
		}

		if err := s.email.SendVerification(ctx, email, value, s.cfg.OTPDeliveryMethod); err != nil {
			s.logger.Error("sending verification email", "error", err)
		}
		return nil
	})
}

// SendResetPasswordEmail mirrors SendVerificationEmail's user-enumeration
// safety for the password-reset flow.
func (s *Service) SendResetPasswordEmail(ctx context.Context, email string) error {
	var found bool
	_ = s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, txErr := s.store.FindByEmail(ctx, tx, email); txErr == nil {
			found = true
		}
		return nil
	})
	if !found {
		return nil
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		kind := otp.KindNumericCode
		ttl := 15 * time.Minute
		if s.cfg.OTPDeliveryMethod == "link" {
			kind = otp.KindHashToken
			ttl = time.Hour
		}

		plaintext, _, err := otp.Create(ctx, tx, email, otp.PurposeResetPassword, kind, ttl)
		if err != nil {
			return err
		}

		value := plaintext
		if kind == otp.KindHashToken {
			value = fmt.Sprintf("%s/auth/reset-password?token=%s", s.cfg.PublicBaseURL, plaintext)
		}

		if err := s.email.SendPasswordReset(ctx, email, value, s.cfg.OTPDeliveryMethod); err != nil {
			s.logger.Error("sending password reset email", "error", err)
		}
		return nil
	})
}

// VerifyEmailWithCode consumes the OTP and marks the account verified
// atomically, then issues a session.
func (s *Service) VerifyEmailWithCode(ctx context.Context, email, code string) (Session, error) {
	var account authstore.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := otp.VerifyWithCode(ctx, tx, email, otp.PurposeVerifyEmail, code); err != nil {
			return err
		}

		existing, err := s.store.FindByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if err := s.store.SetEmailVerified(ctx, tx, existing.ID); err != nil {
			return err
		}
		existing.EmailVerified = true
		account = existing
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(account)
}

// VerifyEmailWithToken resolves the owning email via the OTP hash, then
// proceeds as VerifyEmailWithCode.
func (s *Service) VerifyEmailWithToken(ctx context.Context, tok string) (Session, error) {
	var account authstore.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		email, err := otp.VerifyWithToken(ctx, tx, otp.PurposeVerifyEmail, tok)
		if err != nil {
			return err
		}

		existing, err := s.store.FindByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if err := s.store.SetEmailVerified(ctx, tx, existing.ID); err != nil {
			return err
		}
		existing.EmailVerified = true
		account = existing
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(account)
}

// ExchangeResetCodeForToken verifies a password-reset code then immediately
// issues a fresh hash token under the same purpose, so code-entry and the
// password POST can be separate requests (spec.md §4.4).
func (s *Service) ExchangeResetCodeForToken(ctx context.Context, email, code string) (string, time.Time, error) {
	var tok string
	var expiresAt time.Time
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var txErr error
		tok, expiresAt, txErr = otp.ExchangeCodeForToken(ctx, tx, email, otp.PurposeResetPassword, code, time.Hour)
		return txErr
	})
	return tok, expiresAt, err
}

// ResetPasswordWithToken validates the new password before consuming the
// OTP, so the caller may retry the same token on a weak password.
func (s *Service) ResetPasswordWithToken(ctx context.Context, newPassword, tok string) (string, error) {
	if err := s.policy.Validate(newPassword); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	hashStr := string(hash)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		email, err := otp.VerifyWithToken(ctx, tx, otp.PurposeResetPassword, tok)
		if err != nil {
			return err
		}
		account, err := s.store.FindByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		return s.store.UpdatePasswordHash(ctx, tx, account.ID, hashStr)
	})
	if err != nil {
		return "", err
	}

	return "password updated successfully", nil
}

// AdminLogin compares strict equality against process-configured admin
// credentials; never touches the database.
func (s *Service) AdminLogin(ctx context.Context, email, password string) (string, error) {
	if s.cfg.AdminEmail == "" || email != s.cfg.AdminEmail || password != s.cfg.AdminPassword {
		return "", apperror.Unauthorized("invalid admin credentials")
	}
	return s.tokens.IssueAdmin()
}

// AdminLoginWithAuthorizationCode delegates to C1's cloud-token verifier,
// then mints a local admin JWT.
func (s *Service) AdminLoginWithAuthorizationCode(ctx context.Context, code string) (string, error) {
	if _, err := s.tokens.VerifyCloudToken(ctx, code); err != nil {
		return "", err
	}
	return s.tokens.IssueAdmin()
}

// FindOrCreateThirdPartyUser implements the three-way OAuth linking
// resolution spec.md §4.6 describes.
func (s *Service) FindOrCreateThirdPartyUser(ctx context.Context, identity oauthproviders.Identity) (Session, error) {
	var account authstore.Account

	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// (a) lookup by (provider, providerId)
		if existing, err := s.store.FindByProvider(ctx, tx, identity.Provider, identity.ProviderID); err == nil {
			if err := s.store.SetEmailVerified(ctx, tx, existing.ID); err != nil {
				return err
			}
			account = existing
			return nil
		}

		identityJSON, err := json.Marshal(identity.IdentityData)
		if err != nil {
			return fmt.Errorf("marshaling identity data: %w", err)
		}

		// (b) lookup by email; link provider to the existing account
		if existing, err := s.store.FindByEmail(ctx, tx, identity.Email); err == nil {
			if err := s.store.LinkProvider(ctx, tx, existing.ID, identity.Provider, identity.ProviderID, identityJSON); err != nil {
				return err
			}
			if err := s.store.SetEmailVerified(ctx, tx, existing.ID); err != nil {
				return err
			}
			account = existing
			return nil
		}

		// (c) create account + link provider
		created, err := s.store.CreateAccount(ctx, tx, identity.Email, nil, nonEmptyPtr(identity.UserName), true)
		if err != nil {
			return err
		}
		if err := s.store.LinkProvider(ctx, tx, created.ID, identity.Provider, identity.ProviderID, identityJSON); err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(account)
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetUser looks up a single account by id.
func (s *Service) GetUser(ctx context.Context, id string) (authstore.Account, error) {
	var account authstore.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var txErr error
		account, txErr = s.store.FindByID(ctx, tx, id)
		return txErr
	})
	return account, err
}

// ListUsers returns up to limit accounts.
func (s *Service) ListUsers(ctx context.Context, limit, offset int, search string) ([]authstore.Account, error) {
	var accounts []authstore.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var txErr error
		accounts, txErr = s.store.ListAccounts(ctx, tx, limit, offset, search)
		return txErr
	})
	return accounts, err
}

// DeleteUsers cascades account deletion for every id given.
func (s *Service) DeleteUsers(ctx context.Context, ids []string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.store.DeleteAccounts(ctx, tx, ids)
	})
}

func (s *Service) issueSession(account authstore.Account) (Session, error) {
	accessToken, err := s.tokens.IssueAccess(account.ID, account.Email, token.RoleAuthenticated)
	if err != nil {
		return Session{}, err
	}
	return Session{User: account, AccessToken: accessToken}, nil
}

// Package authhttp wires C6 (plus C1-C5) onto the HTTP surface spec.md §6
// enumerates: account creation/login, PKCE exchange, refresh rotation,
// email verification/reset, admin login, user administration, and the
// per-provider OAuth authorize/callback redirects. Grounded on the teacher's
// internal/auth/login.go handler shape (respondJSON helpers, context-based
// identity) generalized from per-tenant to single-project scope.
package authhttp

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/insforge/core/internal/authsvc"
	"github.com/insforge/core/internal/csrf"
	"github.com/insforge/core/internal/httpserver"
	"github.com/insforge/core/internal/oauthproviders"
	"github.com/insforge/core/internal/pkcestore"
	"github.com/insforge/core/internal/token"
)

// CookieConfig controls how session cookies are rendered.
type CookieConfig struct {
	Secure     bool
	RefreshTTL time.Duration
}

// Handler bundles every collaborator the auth HTTP surface needs.
type Handler struct {
	svc    *authsvc.Service
	tokens *token.Service
	csrf   *csrf.Manager
	pkce   *pkcestore.Store
	oauth  *oauthproviders.Set
	logger *slog.Logger
	cfg    CookieConfig

	publicProviders []string
}

// New constructs the auth HTTP handler. Admin credentials live in
// authsvc.Service's own config and are checked there, not here.
func New(svc *authsvc.Service, tokens *token.Service, csrfMgr *csrf.Manager, pkce *pkcestore.Store, oauth *oauthproviders.Set, logger *slog.Logger, cfg CookieConfig, publicProviders []string) *Handler {
	return &Handler{
		svc: svc, tokens: tokens, csrf: csrfMgr, pkce: pkce, oauth: oauth, logger: logger, cfg: cfg,
		publicProviders: publicProviders,
	}
}

// Mount registers every /auth/* route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/users", h.handleRegister)
	r.Post("/sessions", h.handleLogin)
	r.Post("/exchange", h.handleExchange)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)

	r.Post("/email/send-verification", h.handleSendVerification)
	r.Post("/email/verify", h.handleVerifyEmail)
	r.Post("/email/send-reset-password", h.handleSendResetPassword)
	r.Post("/email/exchange-reset-password-token", h.handleExchangeResetToken)
	r.Post("/email/reset-password", h.handleResetPassword)

	r.Post("/admin/sessions", h.handleAdminLogin)
	r.Post("/admin/sessions/exchange", h.handleAdminExchange)

	r.Get("/sessions/current", h.requireAuth(h.handleCurrentSession))
	r.Get("/public-config", h.handlePublicConfig)
	r.Get("/config", h.requireAdmin(h.handleGetConfig))
	r.Put("/config", h.requireAdmin(h.handlePutConfig))

	r.Get("/users", h.requireAdmin(h.handleListUsers))
	r.Get("/users/{id}", h.requireAdmin(h.handleGetUser))
	r.Delete("/users", h.requireAdmin(h.handleDeleteUsers))

	r.Post("/tokens/anon", h.requireAdmin(h.handleIssueAnonToken))

	r.Get("/oauth/{provider}/authorize", h.handleOAuthAuthorize)
	r.Post("/oauth/{provider}/authorize", h.handleOAuthAuthorize)
	r.Get("/oauth/{provider}/callback", h.handleOAuthCallback)
	r.Post("/oauth/{provider}/callback", h.handleOAuthCallback)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	httpserver.RespondError(w, h.logger, err)
}

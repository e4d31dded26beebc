package authhttp

import (
	"net/http"

	"github.com/insforge/core/internal/httpserver"
)

// handlePublicConfig is a supplemented endpoint (SPEC_FULL.md) exposing
// which sign-in methods a client should render, without leaking credentials.
func (h *Handler) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"oauthProviders": h.publicProviders,
		"password":       true,
	})
}

// handleGetConfig is a supplemented admin-only endpoint returning the
// enabled OAuth provider list; it exposes no configuration beyond that.
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"oauthProviders": h.publicProviders,
	})
}

// handlePutConfig accepts configuration updates. Insforge's configuration is
// process-environment-sourced (internal/config), so this endpoint reports
// which fields are runtime-mutable today: none — changes require a restart.
func (h *Handler) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]string{
		"message": "configuration is sourced from process environment; restart to apply changes",
	})
}

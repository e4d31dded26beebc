package authhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/httpserver"
	"github.com/insforge/core/internal/oauthproviders"
)

func (h *Handler) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, err := h.oauth.Get(name)
	if err != nil {
		h.respondError(w, err)
		return
	}

	state := r.URL.Query().Get("state")
	if state == "" {
		var genErr error
		state, genErr = oauthproviders.NewState()
		if genErr != nil {
			h.respondError(w, genErr)
			return
		}
	}

	url, err := provider.AuthorizeURL(r.Context(), state)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"url": url, "state": state})
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, err := h.oauth.Get(name)
	if err != nil {
		h.respondError(w, err)
		return
	}

	params := oauthproviders.CallbackParams{
		Code:  r.URL.Query().Get("code"),
		Token: r.URL.Query().Get("id_token"),
		State: r.URL.Query().Get("state"),
	}
	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		if params.Code == "" {
			params.Code = r.FormValue("code")
		}
		if params.Token == "" {
			params.Token = r.FormValue("id_token")
		}
		if params.State == "" {
			params.State = r.FormValue("state")
		}
	}

	var identity oauthproviders.Identity
	if broker, ok := provider.(oauthproviders.SharedCallbackProvider); ok && name == "broker" {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			h.respondError(w, apperror.Invalid("invalid broker payload"))
			return
		}
		identity, err = broker.SharedCallback(r.Context(), payload)
	} else {
		identity, err = provider.Callback(r.Context(), params)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	session, err := h.svc.FindOrCreateThirdPartyUser(r.Context(), identity)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.finishSessionWithCookies(w, session.User, session.AccessToken)
}

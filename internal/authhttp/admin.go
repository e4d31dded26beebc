package authhttp

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/httpserver"
)

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	adminToken, err := h.svc.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"accessToken": adminToken})
}

type adminExchangeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) handleAdminExchange(w http.ResponseWriter, r *http.Request) {
	var req adminExchangeRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	adminToken, err := h.svc.AdminLoginWithAuthorizationCode(r.Context(), req.Code)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"accessToken": adminToken})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	search := r.URL.Query().Get("search")

	users, err := h.svc.ListUsers(r.Context(), limit, offset, search)
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, apperror.Invalid("missing user id"))
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"user": toUserView(user)})
}

type deleteUsersRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

func (h *Handler) handleDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req deleteUsersRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	if err := h.svc.DeleteUsers(r.Context(), req.IDs); err != nil {
		h.respondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleIssueAnonToken(w http.ResponseWriter, r *http.Request) {
	anonToken, err := h.tokens.IssueAnon()
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"accessToken": anonToken})
}

package authhttp

import (
	"net/http"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/authctx"
	"github.com/insforge/core/internal/authstore"
	"github.com/insforge/core/internal/httpserver"
	"github.com/insforge/core/internal/pkcestore"
	"github.com/insforge/core/internal/token"
)

func authctxIdentity(r *http.Request) *authctx.Identity {
	return authctx.FromContext(r.Context())
}

type userView struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

func toUserView(a authstore.Account) userView {
	v := userView{ID: a.ID, Email: a.Email, EmailVerified: a.EmailVerified}
	if a.DisplayName != nil {
		v.DisplayName = *a.DisplayName
	}
	return v
}

type registerRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	Password      string  `json:"password" validate:"required"`
	Name          *string `json:"name"`
	CodeChallenge string  `json:"code_challenge"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	result, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if result.RequireEmailVerification {
		httpserver.Respond(w, http.StatusOK, map[string]any{
			"accessToken":              nil,
			"requireEmailVerification": true,
			"user":                     toUserView(*result.User),
		})
		return
	}

	h.issueSessionResponse(w, r, *result.User, *result.AccessToken, req.CodeChallenge)
}

type loginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	CodeChallenge string `json:"code_challenge"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.issueSessionResponse(w, r, session.User, session.AccessToken, req.CodeChallenge)
}

// issueSessionResponse implements spec.md §4.6's "session issue side
// effects": PKCE callers get an authorization code instead of tokens.
func (h *Handler) issueSessionResponse(w http.ResponseWriter, r *http.Request, user authstore.Account, accessToken, codeChallenge string) {
	if codeChallenge != "" {
		code, err := h.pkce.Store(accessToken, toUserView(user), codeChallenge)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, map[string]any{"code": code, "user": toUserView(user)})
		return
	}

	h.finishSessionWithCookies(w, user, accessToken)
}

// finishSessionWithCookies issues a refresh token + CSRF token and sets
// both cookies alongside the access token in the JSON body.
func (h *Handler) finishSessionWithCookies(w http.ResponseWriter, user authstore.Account, accessToken string) {
	refreshToken, err := h.tokens.IssueRefresh(user.ID, user.Email, token.RoleAuthenticated)
	if err != nil {
		h.respondError(w, err)
		return
	}
	csrfToken := h.csrf.Derive(refreshToken)
	h.setSessionCookies(w, refreshToken, csrfToken)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"user":        toUserView(user),
		"accessToken": accessToken,
		"csrfToken":   csrfToken,
	})
}

type exchangeRequest struct {
	Code         string `json:"code" validate:"required"`
	CodeVerifier string `json:"code_verifier"`
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	entry, ok := h.pkce.Consume(req.Code)
	if !ok {
		h.respondError(w, apperror.Unauthorized("authorization code is invalid, expired, or already used"))
		return
	}

	if entry.CodeChallenge != "" && !pkcestore.VerifyChallenge(req.CodeVerifier, entry.CodeChallenge) {
		h.respondError(w, apperror.Unauthorized("code_verifier does not match the stored challenge"))
		return
	}

	view, _ := entry.User.(userView)
	account := authstore.Account{ID: view.ID, Email: view.Email, EmailVerified: view.EmailVerified}

	refreshToken, err := h.tokens.IssueRefresh(account.ID, account.Email, token.RoleAuthenticated)
	if err != nil {
		h.respondError(w, err)
		return
	}
	csrfToken := h.csrf.Derive(refreshToken)
	h.setSessionCookies(w, refreshToken, csrfToken)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"accessToken": entry.AccessToken,
		"user":        view,
		"csrfToken":   csrfToken,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshRaw := refreshCookieValue(r)
	headerToken := r.Header.Get("X-CSRF-Token")
	cookieToken := csrfCookieValue(r)

	if !h.csrf.Verify(headerToken, cookieToken, refreshRaw) {
		h.clearSessionCookies(w)
		h.respondError(w, apperror.Forbidden("CSRF token mismatch"))
		return
	}

	claims, err := h.tokens.VerifyRefresh(refreshRaw)
	if err != nil {
		h.clearSessionCookies(w)
		h.respondError(w, apperror.Unauthorized("invalid or expired refresh token"))
		return
	}

	accessToken, err := h.tokens.IssueAccess(claims.Subject, claims.Email, claims.Role)
	if err != nil {
		h.clearSessionCookies(w)
		h.respondError(w, err)
		return
	}
	newRefresh, err := h.tokens.IssueRefresh(claims.Subject, claims.Email, claims.Role)
	if err != nil {
		h.clearSessionCookies(w)
		h.respondError(w, err)
		return
	}
	newCSRF := h.csrf.Derive(newRefresh)
	h.setSessionCookies(w, newRefresh, newCSRF)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"accessToken": accessToken,
		"csrfToken":   newCSRF,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookies(w)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	id := authctxIdentity(r)
	account, err := h.svc.GetUser(r.Context(), id.Subject)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"user": toUserView(account)})
}

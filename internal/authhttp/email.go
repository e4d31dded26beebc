package authhttp

import (
	"net/http"

	"github.com/insforge/core/internal/httpserver"
)

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// acceptedResponse is the generic 202 spec.md §7 requires for the
// user-enumeration-safe send-verification/send-reset-password endpoints.
var acceptedResponse = map[string]string{"message": "if your email is registered, you will receive instructions shortly"}

func (h *Handler) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}
	if err := h.svc.SendVerificationEmail(r.Context(), req.Email); err != nil {
		h.logger.Error("send verification email", "error", err)
	}
	httpserver.Respond(w, http.StatusAccepted, acceptedResponse)
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	OTP   string `json:"otp"`
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	if req.Email != "" && req.Code != "" {
		sess, err := h.svc.VerifyEmailWithCode(r.Context(), req.Email, req.Code)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.finishSessionWithCookies(w, sess.User, sess.AccessToken)
		return
	}

	sess, err := h.svc.VerifyEmailWithToken(r.Context(), req.OTP)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.finishSessionWithCookies(w, sess.User, sess.AccessToken)
}

func (h *Handler) handleSendResetPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}
	if err := h.svc.SendResetPasswordEmail(r.Context(), req.Email); err != nil {
		h.logger.Error("send reset password email", "error", err)
	}
	httpserver.Respond(w, http.StatusAccepted, acceptedResponse)
}

type exchangeResetTokenRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

func (h *Handler) handleExchangeResetToken(w http.ResponseWriter, r *http.Request) {
	var req exchangeResetTokenRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	token, expiresAt, err := h.svc.ExchangeResetCodeForToken(r.Context(), req.Email, req.Code)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
	Token       string `json:"token" validate:"required"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	message, err := h.svc.ResetPasswordWithToken(r.Context(), req.NewPassword, req.Token)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"message": message})
}

package authhttp

import (
	"net/http"

	"github.com/insforge/core/internal/csrf"
)

const refreshCookieName = "refresh_token"

// setSessionCookies sets the HTTP-only refresh cookie and the JS-readable
// CSRF cookie, per spec.md §6.
func (h *Handler) setSessionCookies(w http.ResponseWriter, refreshToken, csrfToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.RefreshTTL.Seconds()),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.RefreshTTL.Seconds()),
	})
}

// clearSessionCookies is used on logout and on any refresh-path failure.
func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func refreshCookieValue(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func csrfCookieValue(r *http.Request) string {
	c, err := r.Cookie(csrf.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

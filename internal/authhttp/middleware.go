package authhttp

import (
	"net/http"
	"strings"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/authctx"
	"github.com/insforge/core/internal/token"
)

// Authenticate resolves a bearer access JWT (or the anonymous token) into
// an *authctx.Identity stored on the request context. Unlike requireAuth,
// it never rejects a request outright — anonymous callers simply carry the
// anon identity, mirroring the teacher's layered auth-then-require split.
func Authenticate(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			id := &authctx.Identity{Subject: claims.Subject, Email: claims.Email, Role: claims.Role}
			next.ServeHTTP(w, r.WithContext(authctx.NewContext(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

// requireAuth rejects requests that resolved to the anonymous identity.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := authctx.FromContext(r.Context())
		if id.Role == "" || id.Role == token.RoleAnon {
			h.respondError(w, apperror.Unauthorized("authentication required"))
			return
		}
		next(w, r)
	}
}

// requireAdmin rejects requests whose resolved role is not project_admin.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := authctx.FromContext(r.Context())
		if id.Role != token.RoleAdmin {
			h.respondError(w, apperror.Forbidden("admin privileges required"))
			return
		}
		next(w, r)
	}
}

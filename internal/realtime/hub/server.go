package hub

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/httpserver"
	"github.com/insforge/core/internal/token"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated HTTP request to the single WebSocket
// endpoint spec.md §6 describes, authenticating the handshake's bearer
// token (access JWT or the anonymous JWT) before accepting the upgrade.
func ServeWS(h *Hub, tokens *token.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		claims, err := tokens.VerifyAccess(raw)
		if err != nil {
			httpserver.RespondError(w, h.logger, apperror.Unauthorized("invalid or missing bearer token"))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		h.Register(conn, claims.Role, claims.Subject)
	}
}

func bearerToken(r *http.Request) string {
	if v := r.URL.Query().Get("access_token"); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

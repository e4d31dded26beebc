// Package postgresthttp exposes C7's PostgREST proxy and C8's SQL safety
// gate on the HTTP surface: a transparent passthrough for the REST data
// plane, and an admin-only raw-SQL console guarded by the auth-schema gate.
// Grounded on the teacher's internal/bookowl handler shape (thin handler,
// collaborator does the work, errors rendered through the shared envelope).
package postgresthttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/go-chi/chi/v5"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/authctx"
	"github.com/insforge/core/internal/dbsession"
	"github.com/insforge/core/internal/httpserver"
	"github.com/insforge/core/internal/postgrest"
	"github.com/insforge/core/internal/sqlgate"
)

// Handler bundles the proxy and a direct pool handle for the SQL console.
type Handler struct {
	proxy  *postgrest.Proxy
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New constructs the handler.
func New(proxy *postgrest.Proxy, pool *pgxpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{proxy: proxy, pool: pool, logger: logger}
}

// Mount registers the data-plane passthrough and the admin SQL console.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/sql", h.requireAdmin(h.handleSQL))
	r.HandleFunc("/*", h.handleProxy)
}

func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := authctx.FromContext(r.Context())
		if !id.HasMinRole(dbsession.RoleAdmin) {
			httpserver.RespondError(w, h.logger, apperror.Forbidden("admin privileges required"))
			return
		}
		next(w, r)
	}
}

// handleProxy forwards the request verbatim to PostgREST.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpserver.RespondError(w, h.logger, apperror.Invalid("reading request body"))
		return
	}

	resp, err := h.proxy.Forward(r.Context(), postgrest.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header,
		Body:    body,
	})
	if err != nil {
		httpserver.RespondError(w, h.logger, err)
		return
	}

	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

type sqlRequest struct {
	SQL string `json:"sql" validate:"required"`
}

type sqlResponse struct {
	ChangeSet []sqlgate.ChangeSetItem `json:"changeSet"`
}

// handleSQL runs an admin-supplied script statement by statement inside a
// single service-role transaction, rejecting any statement the auth-schema
// gate flags before executing anything.
func (h *Handler) handleSQL(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if !httpserver.DecodeAndValidate(w, r, h.logger, &req) {
		return
	}

	if err := sqlgate.CheckAuthSchemaOperations(req.SQL); err != nil {
		sqlgate.RecordRejection()
		httpserver.RespondError(w, h.logger, err)
		return
	}

	statements, err := sqlgate.Split(req.SQL)
	if err != nil {
		httpserver.RespondError(w, h.logger, apperror.Invalid("splitting SQL script"))
		return
	}

	var changeSet []sqlgate.ChangeSetItem
	err = dbsession.Run(r.Context(), h.pool, dbsession.Identity{Role: dbsession.RoleService}, func(ctx context.Context, tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, execErr := tx.Exec(ctx, stmt); execErr != nil {
				return apperror.Wrap(apperror.KindInvalidInput, "executing statement", execErr)
			}
			changeSet = append(changeSet, sqlgate.AnalyzeQuery(stmt)...)
		}
		return nil
	})
	if err != nil {
		httpserver.RespondError(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, sqlResponse{ChangeSet: changeSet})
}

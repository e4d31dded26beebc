package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/insforge/core/internal/apperror"
)

// Respond writes data as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// errorResponse is the envelope spec.md §7 describes for every error path.
type errorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	StatusCode  int      `json:"statusCode"`
	NextActions []string `json:"nextActions,omitempty"`
}

// RespondError renders err as the standard error envelope, logging the
// underlying cause (never sent to the client) at a level proportional to its
// kind.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Internal("internal error", err)
	}

	status := appErr.StatusCode()
	if status >= 500 {
		logger.Error("request failed", "kind", appErr.Kind, "error", err)
	} else {
		logger.Warn("request rejected", "kind", appErr.Kind, "error", err)
	}

	Respond(w, status, errorResponse{
		Error:       string(appErr.Kind),
		Message:     appErr.Message,
		StatusCode:  status,
		NextActions: appErr.NextActions,
	})
}

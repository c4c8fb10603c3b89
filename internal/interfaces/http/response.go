package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"codenetic/internal/shared/apperr"
)

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	CreationID string `json:"creation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps err's kind to a status code. Internal failures are logged and
// their details withheld from the caller.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	writeErrorBody(w, log, err, ErrorResponse{})
}

func writeErrorBody(w http.ResponseWriter, log *zap.Logger, err error, body ErrorResponse) {
	kind := apperr.KindOf(err)
	body.Success = false
	body.Error = err.Error()

	if kind == apperr.Internal {
		log.Error("request failed", zap.Error(err))
		var appErr *apperr.Error
		if !errors.As(err, &appErr) || appErr.Message == "" {
			body.Error = "Internal server error"
		}
	} else {
		log.Warn("request rejected", zap.String("kind", kind.String()), zap.Error(err))
	}

	writeJSON(w, kind.HTTPStatus(), body)
}

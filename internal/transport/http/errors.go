package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cimillas/ultimate-parking/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeForbidden          = "forbidden"
	codeUnavailable        = "unavailable"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps a service error to its HTTP status by kind. Internal
// errors are logged and replaced with a generic body.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	var status int
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindUnauthorized:
		status = http.StatusUnauthorized
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"op", op,
			"path", r.URL.Path,
			"error", err,
			"request_id", chimw.GetReqID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	var de *domain.Error
	errors.As(err, &de)
	writeError(w, status, de.Code, de.Msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

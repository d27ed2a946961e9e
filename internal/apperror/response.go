package apperror

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// WriteJSON renders err as a JSON error body. Errors that are not *Error
// are reported as internal errors without leaking their text.
func WriteJSON(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Wrap(err, ErrInternal)
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		attrs := []any{"code", appErr.Code}
		if appErr.Internal != nil {
			attrs = append(attrs, "internal_error", appErr.Internal.Error())
		}
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", "code", appErr.Code, "message", appErr.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   appErr.Code,
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// statusFor maps a core error kind to its HTTP status.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation, model.KindInvalidReference, model.KindSlotConflict, model.KindCancellationTooLate:
		return http.StatusBadRequest
	case model.KindDuplicatePatient, model.KindConflict:
		return http.StatusConflict
	case model.KindInvalidToken:
		return http.StatusUnauthorized
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var merr *model.Error
	if errors.As(err, &merr) && merr.Kind != model.KindInternal {
		httpx.WriteError(w, statusFor(merr.Kind), merr.Code, merr.Message)
		return
	}
	logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal server error")
}

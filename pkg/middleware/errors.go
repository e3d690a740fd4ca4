package middleware

import (
	"net/http"

	apperrors "bargain/pkg/errors"
)

func writeError(w http.ResponseWriter, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	appErr.WriteHeaders(w.Header())
	w.WriteHeader(appErr.StatusCode())
	_, _ = w.Write(appErr.ToJSON())
}

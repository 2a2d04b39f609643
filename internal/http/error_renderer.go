package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/greeter-api/internal/errors"
)

// statusClientClosed is the de facto status for requests the client abandoned.
const statusClientClosed = 499

// statusForCode maps application error codes to HTTP statuses.
var statusForCode = map[apperrors.ErrorCode]int{ //nolint:gochecknoglobals // read-only lookup
	apperrors.ErrCodeValidation:  http.StatusBadRequest,
	apperrors.ErrCodeNotFound:    http.StatusNotFound,
	apperrors.ErrCodeConflict:    http.StatusConflict,
	apperrors.ErrCodeUnavailable: http.StatusServiceUnavailable,
	apperrors.ErrCodeTimeout:     http.StatusGatewayTimeout,
	apperrors.ErrCodeCanceled:    statusClientClosed,
	apperrors.ErrCodeInternal:    http.StatusInternalServerError,
}

// DetermineErrorStatus returns the HTTP status and error code for err.
// Store errors are classified through MapDBError so an unreachable database
// surfaces as 503 rather than a blanket 500.
func DetermineErrorStatus(err error) (int, apperrors.ErrorCode) {
	if err == nil {
		return http.StatusOK, ""
	}
	if status, code, ok := statusFor(err); ok {
		return status, code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, apperrors.ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosed, apperrors.ErrCodeCanceled
	}
	if status, code, ok := statusFor(apperrors.MapDBError(err)); ok {
		return status, code
	}
	return http.StatusInternalServerError, apperrors.ErrCodeInternal
}

func statusFor(err error) (int, apperrors.ErrorCode, bool) {
	code := apperrors.GetCode(err)
	status, ok := statusForCode[code]
	return status, code, ok
}

// RenderError writes err as a JSON error response. Server-side failures are
// logged and their details are not echoed to the caller.
func RenderError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, code := DetermineErrorStatus(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"error", err,
			)
		}
		if status == http.StatusInternalServerError {
			err = errors.New(http.StatusText(status))
		}
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(code),
		Err:     err,
		Field:   apperrors.GetField(err),
	})
}

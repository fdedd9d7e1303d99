// Package errors centraliza el mapeo de errores de servicio a respuestas
// HTTP JSON. El cliente recibe códigos estables; las causas quedan en logs.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assessly/authcore/internal/auth"
	"github.com/assessly/authcore/internal/observability/logger"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe la respuesta HTTP para el error dado.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)

	if appErr.HTTPStatus >= 500 {
		logger.From(r.Context()).Error("request failed",
			logger.Layer("http"),
			logger.Status(appErr.HTTPStatus),
			logger.Err(appErr),
		)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// FromError convierte cualquier error en un AppError. Los sentinels del
// servicio de auth tienen mapeo explícito; lo demás es un 500 genérico.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, auth.ErrMissingFields):
		return ErrMissingFields
	case errors.Is(err, auth.ErrThreatDetected):
		return ErrInvalidInput
	case errors.Is(err, auth.ErrInvalidIdentifier):
		return ErrInvalidFormat
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, auth.ErrAccountDisabled):
		return ErrAccountDisabled
	case errors.Is(err, auth.ErrAccountLocked):
		return ErrAccountLocked
	case errors.Is(err, auth.ErrRateLimited):
		return ErrTooManyRequests
	case errors.Is(err, auth.ErrMFAMethodUnknown):
		return ErrUnknownMFAMethod
	case errors.Is(err, auth.ErrMFACodeInvalid):
		return ErrMFACodeInvalid
	case errors.Is(err, auth.ErrMFATooManyAttempts),
		errors.Is(err, auth.ErrChallengeInvalid):
		return ErrMFAChallengeInvalid
	case errors.Is(err, auth.ErrTokenInvalid):
		return ErrInvalidToken
	default:
		return ErrInternalServerError.WithCause(err)
	}
}

// Package errors define los errores HTTP de la API y su forma JSON.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/token"
)

// AppError es un error con status HTTP y código estable.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail devuelve una COPIA con el detalle dado.
func (e *AppError) WithDetail(detail string) *AppError {
	n := *e
	n.Detail = detail
	return &n
}

// WithCause devuelve una COPIA con la causa dada.
func (e *AppError) WithCause(err error) *AppError {
	n := *e
	n.Err = err
	return &n
}

var (
	ErrBadRequest       = &AppError{Code: "BAD_REQUEST", Message: "invalid request", HTTPStatus: http.StatusBadRequest}
	ErrInvalidJSON      = &AppError{Code: "INVALID_JSON", Message: "request body is not valid JSON", HTTPStatus: http.StatusBadRequest}
	ErrMissingFields    = &AppError{Code: "MISSING_FIELDS", Message: "missing required parameters", HTTPStatus: http.StatusBadRequest}
	ErrInvalidParameter = &AppError{Code: "INVALID_PARAMETER", Message: "invalid parameter", HTTPStatus: http.StatusBadRequest}

	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "authentication required", HTTPStatus: http.StatusUnauthorized}
	ErrTokenInvalid = &AppError{Code: "TOKEN_INVALID", Message: "invalid access token", HTTPStatus: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "admin required", HTTPStatus: http.StatusForbidden}

	ErrNotFound         = &AppError{Code: "NOT_FOUND", Message: "resource not found", HTTPStatus: http.StatusNotFound}
	ErrRouteNotFound    = &AppError{Code: "ROUTE_NOT_FOUND", Message: "route not found", HTTPStatus: http.StatusNotFound}
	ErrMethodNotAllowed = &AppError{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed", HTTPStatus: http.StatusMethodNotAllowed}
	ErrConflict         = &AppError{Code: "CONFLICT", Message: "resource already exists", HTTPStatus: http.StatusConflict}

	ErrRateLimitExceeded   = &AppError{Code: "RATE_LIMIT_EXCEEDED", Message: "too many requests", HTTPStatus: http.StatusTooManyRequests}
	ErrInternalServerError = &AppError{Code: "INTERNAL_SERVER_ERROR", Message: "internal error", HTTPStatus: http.StatusInternalServerError}
	ErrNotImplemented      = &AppError{Code: "NOT_IMPLEMENTED", Message: "not supported by the configured backend", HTTPStatus: http.StatusNotImplemented}
)

// FromError traduce errores de las capas de dominio. Lo desconocido es 500.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	switch {
	case stderrors.Is(err, token.ErrTokenDisabled):
		return ErrBadRequest.WithDetail("token disabled").WithCause(err)
	case stderrors.Is(err, token.ErrUnknownType),
		stderrors.Is(err, audit.ErrUnknownFilter),
		stderrors.Is(err, repository.ErrInvalidInput):
		return ErrInvalidParameter.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, repository.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case stderrors.Is(err, repository.ErrConflict):
		return ErrConflict.WithCause(err)
	case stderrors.Is(err, audit.ErrNotRotatable):
		return ErrNotImplemented.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

type errorBody struct {
	Result struct {
		Status bool      `json:"status"`
		Error  *AppError `json:"error"`
	} `json:"result"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError escribe {"result": {"status": false, "error": {...}}}.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	var body errorBody
	body.Result.Error = appErr
	body.RequestID = w.Header().Get("X-Request-ID")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(body)
}

package http

import (
	"errors"
	"fmt"
	"net/http"

	"charger-monitor/reliability/internal/pipeline"
	"charger-monitor/reliability/internal/reliability"
)

// APIError is the body of every failed request.
type APIError struct {
	Status  int    `json:"-" msgpack:"-"`
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// toAPIError maps engine and pipeline errors onto HTTP statuses. Anything it
// does not recognise is treated as a data source failure.
func toAPIError(err error) *APIError {
	var (
		apiErr    *APIError
		windowErr *reliability.InvalidWindowError
		configErr *reliability.ConfigError
		scopeErr  *reliability.UnknownScopeError
		orderErr  *reliability.UnsortedInputError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &windowErr):
		return &APIError{Status: http.StatusBadRequest, Code: "INVALID_WINDOW", Message: windowErr.Error()}
	case errors.As(err, &configErr):
		return &APIError{Status: http.StatusBadRequest, Code: "INVALID_PARAMETER", Message: configErr.Error()}
	case errors.As(err, &scopeErr):
		return NewNotFoundError(string(scopeErr.Scope), scopeErr.ID)
	case errors.Is(err, pipeline.ErrInvalidPing):
		return NewBadRequestError("invalid status ping", err)
	case errors.As(err, &orderErr):
		return NewInternalError("inconsistent status data", err)
	default:
		return NewInternalError("data source failure", err)
	}
}

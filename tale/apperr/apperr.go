// Package apperr defines coded application errors shared by the core and its drivers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and transports.
type Code string

const (
	CodeInvalidParam        Code = "invalid_param"
	CodeNotFound            Code = "not_found"
	CodeConfiguration       Code = "configuration"
	CodeUpstream            Code = "upstream"
	CodeMalformedCompletion Code = "malformed_completion"
	CodePersistence         Code = "persistence"
	CodeInternal            Code = "internal"
)

// AppError is an error carrying a Code and an optional cause.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError with the same code, so errors.Is(err, ErrUpstream) works on wrapped values.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the code to a status for HTTP drivers.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidParam, CodeConfiguration:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream, CodeMalformedCompletion:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// As extracts the first AppError in err's chain, wrapping unknown errors as internal.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternal, "internal error")
}

var (
	ErrInvalidParam        = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound            = New(CodeNotFound, "not found")
	ErrConfiguration       = New(CodeConfiguration, "invalid model configuration")
	ErrUpstream            = New(CodeUpstream, "completion failed")
	ErrMalformedCompletion = New(CodeMalformedCompletion, "malformed completion")
	ErrPersistence         = New(CodePersistence, "persistence failed")
)

// Package errors holds the sentinel errors shared by the indexer and the
// searcher and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownBackend   = errors.New("unknown index backend")
	ErrUnknownSource    = errors.New("unknown document source")
	ErrIndexNotLoaded   = errors.New("index not loaded")
	ErrCorruptBundle    = errors.New("corrupt bundle")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode returns the status of the first AppError in err's chain,
// otherwise the status of its sentinel. Unknown errors are 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotLoaded), errors.Is(err, ErrCacheUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

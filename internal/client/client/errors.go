package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the credential is missing or was rejected (401).
	// Sync passes abort on it; refreshing the credential is not done here.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable means the server could not be reached at all.
	ErrUnavailable = errors.New("server unavailable")
)

// NetworkError wraps connectivity failures and timeouts. Retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match any network error.
func (e *NetworkError) Is(target error) bool { return target == ErrUnavailable }

// ServerError is a 5xx response. Retryable.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return statusMessage("server error", e.StatusCode, e.Message)
}

// ClientError is a 4xx response other than 401. Generally not retryable.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return statusMessage("client error", e.StatusCode, e.Message)
}

// IsNotFound reports a 404.
func (e *ClientError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func statusMessage(kind string, code int, msg string) string {
	s := fmt.Sprintf("%s %d (%s)", kind, code, http.StatusText(code))
	if msg != "" {
		s += ": " + msg
	}
	return s
}

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	var ne *NetworkError
	var se *ServerError
	return errors.As(err, &ne) || errors.As(err, &se)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.IsNotFound()
}

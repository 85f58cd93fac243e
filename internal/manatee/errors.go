package manatee

import (
	"errors"
	"fmt"
)

// ErrEmptyBody is returned when a 200 response carries no payload.
var ErrEmptyBody = errors.New("response stream is closed")

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected http status %d", e.Endpoint, e.StatusCode)
}

// APIError is a well-formed envelope with a non-zero code.
type APIError struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: code %d: %s", e.Endpoint, e.Code, e.Msg)
}

// DecodeError is a body that is not the expected JSON envelope.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies API failures into a closed set so call sites can
// branch on kind rather than on response shape.
type ErrorKind string

const (
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork ErrorKind = "network"

	// KindUnauthorized means the server rejected the credential (401/403).
	KindUnauthorized ErrorKind = "unauthorized"

	// KindBadRequest means the server rejected the request itself (other 4xx)
	// or the request could not be built.
	KindBadRequest ErrorKind = "bad_request"

	// KindServer means a 5xx response or an undecodable body.
	KindServer ErrorKind = "server"
)

// Error is the failure type returned by all Client methods.
type Error struct {
	Kind    ErrorKind
	Status  int // HTTP status, 0 when no response was received
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

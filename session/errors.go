package session

import (
	"errors"
	"fmt"
)

// Kind classifies session failures into the closed set surfaced to the
// UI layer.
type Kind string

const (
	// KindValidation covers bad credentials and malformed server
	// responses during sign-in.
	KindValidation Kind = "validation"

	// KindNetwork covers transport failures reaching the remote API.
	KindNetwork Kind = "network"

	// KindSessionExpired means the server rejected a token it had
	// previously accepted.
	KindSessionExpired Kind = "session_expired"

	// KindRegistration covers remote failures during account creation.
	KindRegistration Kind = "registration"

	// KindLogout covers remote failures during sign-out.
	KindLogout Kind = "logout"

	// KindPreferencesSync means the remote preference sync failed after
	// the local write already succeeded. Non-fatal.
	KindPreferencesSync Kind = "preferences_sync"
)

// Error is the failure type returned by all Manager operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("session: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("session: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var sessErr *Error
	return errors.As(err, &sessErr) && sessErr.Kind == kind
}

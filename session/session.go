// Package session owns the client-side authentication lifecycle: the
// guest/authenticated state machine, token and preference persistence,
// and periodic server-side revalidation of the cached token.
package session

import "time"

// State is the lifecycle state of the Manager.
type State string

const (
	// StateUninitialized is the state before Initialize runs.
	StateUninitialized State = "uninitialized"

	// StateInitializing is entered transiently during Initialize and is
	// never re-entered after the first resolution.
	StateInitializing State = "initializing"

	// StateGuest means no authenticated session is active.
	StateGuest State = "guest"

	// StateAuthenticated means a validated session and token are held.
	StateAuthenticated State = "authenticated"
)

// Session is the authenticated identity. It is either fully populated
// or entirely absent; no partial session is ever published or persisted.
type Session struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// Preferences is the user's default translation language pair. It may
// exist independently of any Session: guests keep their last-known
// language defaults.
type Preferences struct {
	DefaultFromLang string `json:"defaultFromLang"`
	DefaultToLang   string `json:"defaultToLang"`
}

// Snapshot is a point-in-time copy of the Manager's published state.
// Consumers read snapshots; only the Manager mutates the underlying
// state.
type Snapshot struct {
	State       State
	Session     *Session
	Preferences Preferences

	// IsLoading is true while Initialize is in progress.
	IsLoading bool

	// IsAuthLoading is true while a sign-in, sign-out, registration or
	// preference sync is in flight.
	IsAuthLoading bool

	// IsLoggingIn is true only between the start of SignIn and its
	// resolution. The revalidator consults it to avoid logging the user
	// out over a validation check that raced a fresh login.
	IsLoggingIn bool

	// LastLoginAt is the time of the most recent successful sign-in.
	LastLoginAt time.Time

	// Err is the last surfaced failure, or nil.
	Err error
}

// Persistent store keys.
const (
	keyUser        = "user"
	keyToken       = "signed_session_id"
	keyPreferences = "preferences"
)

// RevalidationOutcome describes the result of one revalidation pass,
// reported to the Observer.
type RevalidationOutcome string

const (
	// RevalidationPassed means the server accepted the token.
	RevalidationPassed RevalidationOutcome = "passed"

	// RevalidationSkipped means no token was cached or the result was
	// discarded as stale or inside the login grace window.
	RevalidationSkipped RevalidationOutcome = "skipped"

	// RevalidationExpired means the server rejected the token and the
	// session was cleared.
	RevalidationExpired RevalidationOutcome = "expired"
)

// Observer receives lifecycle notifications for instrumentation. All
// methods must be safe for concurrent use and must not block.
type Observer interface {
	// OperationCompleted reports a finished user-invoked operation
	// ("sign_in", "sign_out", "register", "set_preferences") and its
	// outcome.
	OperationCompleted(op string, err error)

	// RevalidationCompleted reports one revalidation pass.
	RevalidationCompleted(outcome RevalidationOutcome, elapsed time.Duration)
}

package server

import (
	"context"
	"errors"
	"time"
)

// UserRecord represents a stored user account.
type UserRecord struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"` // Never expose in JSON
	DefaultFromLang string    `json:"defaultFromLang,omitempty"`
	DefaultToLang   string    `json:"defaultToLang,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionRecord represents an active user session.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"` // The actual token
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for auth store operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// AuthStore defines the interface for user and session persistence.
type AuthStore interface {
	// CreateUser adds a new user record.
	CreateUser(ctx context.Context, rec UserRecord) error

	// GetUserByEmail retrieves a user by email address.
	GetUserByEmail(ctx context.Context, email string) (UserRecord, bool, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (UserRecord, bool, error)

	// UpdateUserPreferences sets the user's default language pair.
	UpdateUserPreferences(ctx context.Context, userID, fromLang, toLang string) error

	// CreateSession creates a new session for a user.
	CreateSession(ctx context.Context, sess SessionRecord) error

	// GetSessionByToken retrieves a session by token.
	GetSessionByToken(ctx context.Context, token string) (SessionRecord, bool, error)

	// DeleteSessionByToken removes a session by its token.
	DeleteSessionByToken(ctx context.Context, token string) error

	// DeleteUserSessions removes all sessions for a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// CleanExpiredSessions removes all expired sessions and reports how
	// many were removed.
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

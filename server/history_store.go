package server

import (
	"context"
	"errors"
	"time"
)

// Translation history kinds.
const (
	HistoryKindText  = "text"
	HistoryKindVoice = "voice"
)

// ErrTranslationNotFound is returned when a history entry does not
// exist or belongs to another user.
var ErrTranslationNotFound = errors.New("translation not found")

// TranslationRecord is one saved translation in a user's history.
type TranslationRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"-"`
	Kind           string    `json:"-"`
	FromLang       string    `json:"fromLang"`
	ToLang         string    `json:"toLang"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryStore persists per-user translation history.
type HistoryStore interface {
	// SaveTranslation stores a new history entry.
	SaveTranslation(ctx context.Context, rec *TranslationRecord) error

	// ListTranslations returns a user's entries of one kind, newest first.
	ListTranslations(ctx context.Context, userID, kind string) ([]*TranslationRecord, error)

	// DeleteTranslation removes one entry by id, scoped to the user.
	DeleteTranslation(ctx context.Context, userID, id string) error

	// ClearTranslations removes all of a user's entries across kinds.
	ClearTranslations(ctx context.Context, userID string) error
}

func isValidHistoryKind(kind string) bool {
	return kind == HistoryKindText || kind == HistoryKindVoice
}

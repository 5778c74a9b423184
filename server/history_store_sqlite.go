package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const historySQLiteSchema = `
CREATE TABLE IF NOT EXISTS translations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	from_lang TEXT,
	to_lang TEXT,
	original_text TEXT NOT NULL,
	translated_text TEXT NOT NULL,
	type TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_translations_user_kind ON translations(user_id, kind);
`

// HistorySQLiteStore persists translation history in SQLite.
type HistorySQLiteStore struct {
	db *sql.DB
}

// NewHistorySQLiteStore creates a SQLite-backed history store using an
// existing database connection.
func NewHistorySQLiteStore(db *sql.DB) (*HistorySQLiteStore, error) {
	if db == nil {
		return nil, errors.New("history sqlite store: db is nil")
	}
	if _, err := db.Exec(historySQLiteSchema); err != nil {
		return nil, fmt.Errorf("history sqlite store create schema: %w", err)
	}
	return &HistorySQLiteStore{db: db}, nil
}

func (s *HistorySQLiteStore) SaveTranslation(ctx context.Context, rec *TranslationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO translations (id, user_id, kind, from_lang, to_lang, original_text, translated_text, type, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.Kind,
		nullIfEmpty(rec.FromLang),
		nullIfEmpty(rec.ToLang),
		rec.OriginalText,
		rec.TranslatedText,
		nullIfEmpty(rec.Type),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history sqlite store save translation: %w", err)
	}
	return nil
}

func (s *HistorySQLiteStore) ListTranslations(ctx context.Context, userID, kind string) ([]*TranslationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, kind, from_lang, to_lang, original_text, translated_text, type, created_at
FROM translations
WHERE user_id = ? AND kind = ?
ORDER BY created_at DESC`, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("history sqlite store list translations: %w", err)
	}
	defer rows.Close()

	var out []*TranslationRecord
	for rows.Next() {
		rec, err := scanTranslationRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history sqlite store list translations rows: %w", err)
	}
	return out, nil
}

func (s *HistorySQLiteStore) DeleteTranslation(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translations WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("history sqlite store delete translation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history sqlite store delete translation affected rows: %w", err)
	}
	if affected == 0 {
		return ErrTranslationNotFound
	}
	return nil
}

func (s *HistorySQLiteStore) ClearTranslations(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM translations WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("history sqlite store clear translations: %w", err)
	}
	return nil
}

func scanTranslationRecord(scanner recordScanner) (*TranslationRecord, error) {
	var (
		id             string
		userID         string
		kind           string
		fromLang       sql.NullString
		toLang         sql.NullString
		originalText   string
		translatedText string
		typ            sql.NullString
		createdAt      string
	)
	if err := scanner.Scan(&id, &userID, &kind, &fromLang, &toLang, &originalText, &translatedText, &typ, &createdAt); err != nil {
		return nil, err
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("history sqlite store parse created_at: %w", err)
	}

	return &TranslationRecord{
		ID:             id,
		UserID:         userID,
		Kind:           kind,
		FromLang:       fromLang.String,
		ToLang:         toLang.String,
		OriginalText:   originalText,
		TranslatedText: translatedText,
		Type:           typ.String,
		CreatedAt:      created,
	}, nil
}

var _ HistoryStore = (*HistorySQLiteStore)(nil)

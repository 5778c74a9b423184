package server

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newSQLiteTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newSQLiteAuthStore(t *testing.T) *AuthSQLiteStore {
	t.Helper()
	store, err := NewAuthSQLiteStore(newSQLiteTestDB(t))
	if err != nil {
		t.Fatalf("create auth store: %v", err)
	}
	return store
}

func TestAuthSQLiteStore_CreateAndGetUser(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	user := UserRecord{
		ID:              uuid.NewString(),
		Email:           "Alice@Example.com",
		PasswordHash:    "hash",
		DefaultFromLang: "en",
		DefaultToLang:   "he",
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, found, err := store.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if !found {
		t.Fatal("expected user to be found by case-insensitive email")
	}
	if got.ID != user.ID || got.DefaultFromLang != "en" || got.DefaultToLang != "he" {
		t.Fatalf("unexpected record: %+v", got)
	}

	byID, found, err := store.GetUserByID(ctx, user.ID)
	if err != nil || !found {
		t.Fatalf("get by id: found=%v err=%v", found, err)
	}
	if byID.Email != "alice@example.com" {
		t.Fatalf("expected lowercased email, got %q", byID.Email)
	}
}

func TestAuthSQLiteStore_DuplicateEmail(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	first := UserRecord{ID: uuid.NewString(), Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, first); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := UserRecord{ID: uuid.NewString(), Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthSQLiteStore_UpdatePreferences(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	user := UserRecord{ID: uuid.NewString(), Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := store.UpdateUserPreferences(ctx, user.ID, "fr", "de"); err != nil {
		t.Fatalf("update preferences: %v", err)
	}

	got, _, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.DefaultFromLang != "fr" || got.DefaultToLang != "de" {
		t.Fatalf("expected fr/de, got %s/%s", got.DefaultFromLang, got.DefaultToLang)
	}

	if err := store.UpdateUserPreferences(ctx, "missing", "fr", "de"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthSQLiteStore_SessionLifecycle(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	user := UserRecord{ID: uuid.NewString(), Email: "alice@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	sess := SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     "token-1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, found, err := store.GetSessionByToken(ctx, "token-1")
	if err != nil || !found {
		t.Fatalf("get session: found=%v err=%v", found, err)
	}
	if got.UserID != user.ID {
		t.Fatalf("session user %s, want %s", got.UserID, user.ID)
	}

	if err := store.DeleteSessionByToken(ctx, "token-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := store.DeleteSessionByToken(ctx, "token-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthSQLiteStore_ExpiredSession(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	sess := SessionRecord{
		ID:        uuid.NewString(),
		UserID:    uuid.NewString(),
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, _, err := store.GetSessionByToken(ctx, "stale"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthSQLiteStore_CleanExpiredSessions(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := SessionRecord{ID: uuid.NewString(), UserID: "u1", Token: "stale", ExpiresAt: now.Add(-time.Minute)}
	live := SessionRecord{ID: uuid.NewString(), UserID: "u1", Token: "live", ExpiresAt: now.Add(time.Hour)}
	for _, sess := range []SessionRecord{stale, live} {
		if err := store.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	removed, err := store.CleanExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("clean expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, found, err := store.GetSessionByToken(ctx, "live"); err != nil || !found {
		t.Fatalf("expected live session to survive: found=%v err=%v", found, err)
	}
}

func TestAuthSQLiteStore_DeleteUserSessions(t *testing.T) {
	store := newSQLiteAuthStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, token := range []string{"a", "b"} {
		sess := SessionRecord{ID: uuid.NewString(), UserID: "u1", Token: token, ExpiresAt: now.Add(time.Hour)}
		if err := store.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	other := SessionRecord{ID: uuid.NewString(), UserID: "u2", Token: "c", ExpiresAt: now.Add(time.Hour)}
	if err := store.CreateSession(ctx, other); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := store.DeleteUserSessions(ctx, "u1"); err != nil {
		t.Fatalf("delete user sessions: %v", err)
	}

	for _, token := range []string{"a", "b"} {
		if _, found, _ := store.GetSessionByToken(ctx, token); found {
			t.Fatalf("expected session %q removed", token)
		}
	}
	if _, found, _ := store.GetSessionByToken(ctx, "c"); !found {
		t.Fatal("expected other user's session to survive")
	}
}

package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(SQLiteStoreConfig{
		DSN: filepath.Join(t.TempDir(), "kv.sqlite"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "user"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("Get missing: got %v, want ErrKeyNotFound", err)
			}

			if err := store.Set(ctx, "user", []byte(`{"id":"u-1"}`)); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := store.Get(ctx, "user")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != `{"id":"u-1"}` {
				t.Fatalf("Get: got %q", got)
			}

			// Overwrite.
			if err := store.Set(ctx, "user", []byte(`{"id":"u-2"}`)); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = store.Get(ctx, "user")
			if string(got) != `{"id":"u-2"}` {
				t.Fatalf("Get after overwrite: got %q", got)
			}

			if err := store.Delete(ctx, "user"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, "user"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("Get after delete: got %v, want ErrKeyNotFound", err)
			}

			// Deleting a missing key is not an error.
			if err := store.Delete(ctx, "user"); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()

	for name, store := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = store.Set(ctx, "user", []byte(`{}`))
			_ = store.Set(ctx, "signed_session_id", []byte(`"tok"`))
			_ = store.Set(ctx, "preferences", []byte(`{"defaultFromLang":"en"}`))

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}

			for _, key := range []string{"user", "signed_session_id", "preferences"} {
				if _, err := store.Get(ctx, key); !errors.Is(err, ErrKeyNotFound) {
					t.Fatalf("Get %q after clear: got %v, want ErrKeyNotFound", key, err)
				}
			}
		})
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Set(ctx, "preferences", []byte(`{"defaultFromLang":"en"}`))
	got, _ := store.Get(ctx, "preferences")
	got[0] = 'X'

	again, _ := store.Get(ctx, "preferences")
	if string(again) != `{"defaultFromLang":"en"}` {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

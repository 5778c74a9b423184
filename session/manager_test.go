package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lingua-labs/linguaflow/api"
	"github.com/lingua-labs/linguaflow/kvstore"
)

// fakeClient is a scriptable APIClient.
type fakeClient struct {
	mu sync.Mutex

	loginResult api.LoginResult
	loginErr    error
	// When set, Login blocks until the channel is closed.
	loginGate   chan struct{}
	validateErr error
	logoutErr   error
	registerErr error
	prefsErr    error

	validateCalls int
	prefsCalls    int
	logoutCalls   int
}

func (c *fakeClient) Register(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerErr
}

func (c *fakeClient) Login(context.Context, string, string) (api.LoginResult, error) {
	c.mu.Lock()
	gate := c.loginGate
	result, err := c.loginResult, c.loginErr
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return result, err
}

func (c *fakeClient) ValidateSession(context.Context, string) (api.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validateCalls++
	if c.validateErr != nil {
		return api.User{}, c.validateErr
	}
	return c.loginResult.User, nil
}

func (c *fakeClient) Logout(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutCalls++
	return c.logoutErr
}

func (c *fakeClient) UpdatePreferences(context.Context, string, api.Preferences) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefsCalls++
	return c.prefsErr
}

func (c *fakeClient) set(fn func(*fakeClient)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUnauthorized = &api.Error{Kind: api.KindUnauthorized, Status: http.StatusForbidden, Message: "Invalid or expired session"}

func testUser() api.User {
	return api.User{ID: "u-1", Email: "a@b.c", DefaultFromLang: "en", DefaultToLang: "he"}
}

func newTestManager(t *testing.T, store kvstore.Store, client *fakeClient, clock *fakeClock, onExpired func()) *Manager {
	t.Helper()

	mgr, err := NewManager(Config{
		Store:              store,
		Client:             client,
		RevalidateInterval: -1, // loop driven manually in tests
		Now:                clock.Now,
		OnSessionExpired:   onExpired,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func seedStore(t *testing.T, store kvstore.Store, key string, value any) {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal %s: %v", key, err)
	}
	if err := store.Set(context.Background(), key, raw); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

// faultyStore fails reads of one key and delegates everything else.
type faultyStore struct {
	kvstore.Store
	failKey string
}

func (s *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == s.failKey {
		return nil, errors.New("disk read failed")
	}
	return s.Store.Get(ctx, key)
}

func TestInitialize_NoToken(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	seedStore(t, store, keyPreferences, Preferences{DefaultFromLang: "fr", DefaultToLang: "de"})

	mgr := newTestManager(t, store, &fakeClient{}, newFakeClock(), nil)
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateGuest {
		t.Errorf("state: got %s, want guest", snap.State)
	}
	if snap.Session != nil {
		t.Errorf("session: got %+v, want nil", snap.Session)
	}
	if snap.Preferences.DefaultFromLang != "fr" || snap.Preferences.DefaultToLang != "de" {
		t.Errorf("preferences: got %+v", snap.Preferences)
	}
	if snap.IsLoading {
		t.Error("IsLoading still true after Initialize")
	}
}

func TestInitialize_ValidToken(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	seedStore(t, store, keyUser, testUser())
	seedStore(t, store, keyToken, "tok-1")

	client := &fakeClient{loginResult: api.LoginResult{User: testUser()}}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("state: got %s, want authenticated", snap.State)
	}
	if snap.Session == nil || snap.Session.UserID != "u-1" || snap.Session.Token != "tok-1" {
		t.Errorf("session: got %+v", snap.Session)
	}
}

func TestInitialize_RejectedToken(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	seedStore(t, store, keyUser, testUser())
	seedStore(t, store, keyToken, "tok-stale")
	seedStore(t, store, keyPreferences, Preferences{DefaultFromLang: "en", DefaultToLang: "he"})

	client := &fakeClient{validateErr: errUnauthorized}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateGuest {
		t.Fatalf("state: got %s, want guest", snap.State)
	}
	if _, err := store.Get(ctx, keyToken); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Errorf("token still persisted after rejected validation: %v", err)
	}
	if _, err := store.Get(ctx, keyUser); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Errorf("user still persisted after rejected validation: %v", err)
	}
	// Preferences survive the transition back to guest.
	if snap.Preferences.DefaultFromLang != "en" {
		t.Errorf("preferences lost: got %+v", snap.Preferences)
	}
}

func TestInitialize_CacheReadFailure(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: kvstore.NewMemoryStore(), failKey: keyUser}
	mgr := newTestManager(t, store, &fakeClient{}, newFakeClock(), nil)

	err := mgr.Initialize(ctx)
	if !IsKind(err, KindValidation) {
		t.Fatalf("got %v, want KindValidation", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateGuest {
		t.Errorf("state: got %s, want guest", snap.State)
	}
	if !IsKind(snap.Err, KindValidation) {
		t.Errorf("Err: got %v, want KindValidation", snap.Err)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, kvstore.NewMemoryStore(), &fakeClient{}, newFakeClock(), nil)
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if got := mgr.Snapshot().State; got != StateGuest {
		t.Errorf("state: got %s", got)
	}
}

func TestSignIn_Success(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	client := &fakeClient{loginResult: api.LoginResult{User: testUser(), Token: "tok-1"}}
	clock := newFakeClock()
	mgr := newTestManager(t, store, client, clock, nil)
	_ = mgr.Initialize(ctx)

	if err := mgr.SignIn(ctx, "a@b.c", "secret"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateAuthenticated {
		t.Fatalf("state: got %s", snap.State)
	}
	if snap.Session.Token != "tok-1" {
		t.Errorf("token: got %q", snap.Session.Token)
	}
	// Preferences seeded from the user's defaults.
	if snap.Preferences.DefaultFromLang != "en" || snap.Preferences.DefaultToLang != "he" {
		t.Errorf("preferences: got %+v", snap.Preferences)
	}
	if !snap.LastLoginAt.Equal(clock.Now()) {
		t.Errorf("LastLoginAt: got %v", snap.LastLoginAt)
	}
	if snap.IsLoggingIn || snap.IsAuthLoading {
		t.Error("transient flags still set after SignIn resolved")
	}

	if _, err := store.Get(ctx, keyToken); err != nil {
		t.Errorf("token not persisted: %v", err)
	}
}

func TestSignIn_BadCredentials(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	seedStore(t, store, keyPreferences, Preferences{DefaultFromLang: "fr"})
	client := &fakeClient{loginErr: &api.Error{Kind: api.KindBadRequest, Status: 400, Message: "Invalid email or password"}}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)

	err := mgr.SignIn(ctx, "a@b.c", "wrong")
	if !IsKind(err, KindValidation) {
		t.Fatalf("got %v, want KindValidation", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateGuest || snap.Session != nil {
		t.Errorf("state after failed sign-in: %s %+v", snap.State, snap.Session)
	}
	// Failed sign-in keeps preferences.
	if snap.Preferences.DefaultFromLang != "fr" {
		t.Errorf("preferences lost: got %+v", snap.Preferences)
	}
	if snap.Err == nil {
		t.Error("Err not surfaced for passive observers")
	}
}

func TestSignIn_NetworkError(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{loginErr: &api.Error{Kind: api.KindNetwork, Message: "connection refused"}}
	mgr := newTestManager(t, kvstore.NewMemoryStore(), client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)

	if err := mgr.SignIn(ctx, "a@b.c", "secret"); !IsKind(err, KindNetwork) {
		t.Fatalf("got %v, want KindNetwork", err)
	}
}

func TestSignOut_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	client := &fakeClient{loginResult: api.LoginResult{User: testUser(), Token: "tok-1"}}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)
	_ = mgr.SignIn(ctx, "a@b.c", "secret")

	if err := mgr.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateGuest || snap.Session != nil {
		t.Errorf("state: %s %+v", snap.State, snap.Session)
	}
	if snap.Preferences != (Preferences{}) {
		t.Errorf("preferences not cleared: %+v", snap.Preferences)
	}
	for _, key := range []string{keyUser, keyToken, keyPreferences} {
		if _, err := store.Get(ctx, key); !errors.Is(err, kvstore.ErrKeyNotFound) {
			t.Errorf("%s still persisted after sign-out", key)
		}
	}
}

func TestSignOut_RemoteFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{loginResult: api.LoginResult{User: testUser(), Token: "tok-1"}}
	mgr := newTestManager(t, kvstore.NewMemoryStore(), client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)
	_ = mgr.SignIn(ctx, "a@b.c", "secret")

	client.set(func(c *fakeClient) { c.logoutErr = &api.Error{Kind: api.KindNetwork, Message: "timeout"} })

	err := mgr.SignOut(ctx)
	if !IsKind(err, KindLogout) {
		t.Fatalf("got %v, want KindLogout", err)
	}
	if snap := mgr.Snapshot(); snap.State != StateAuthenticated || snap.Session == nil {
		t.Errorf("session lost on failed remote logout: %s", snap.State)
	}
}

func TestSignOut_IdempotentWhenGuest(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{loginResult: api.LoginResult{User: testUser(), Token: "tok-1"}}
	mgr := newTestManager(t, kvstore.NewMemoryStore(), client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)
	_ = mgr.SignIn(ctx, "a@b.c", "secret")

	if err := mgr.SignOut(ctx); err != nil {
		t.Fatalf("first SignOut: %v", err)
	}
	if err := mgr.SignOut(ctx); err != nil {
		t.Fatalf("second SignOut: %v", err)
	}
	if got := client.logoutCalls; got != 1 {
		t.Errorf("logout calls: got %d, want 1", got)
	}
	if got := mgr.Snapshot().State; got != StateGuest {
		t.Errorf("state: got %s", got)
	}
}

func TestRegister_SeedsPreferencesWithoutSession(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	mgr := newTestManager(t, store, &fakeClient{}, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)

	if err := mgr.Register(ctx, "new@b.c", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.State != StateGuest || snap.Session != nil {
		t.Errorf("register must not establish a session: %s %+v", snap.State, snap.Session)
	}
	if snap.Preferences.DefaultFromLang != "en" || snap.Preferences.DefaultToLang != "he" {
		t.Errorf("default preferences: got %+v", snap.Preferences)
	}
	if _, err := store.Get(ctx, keyPreferences); err != nil {
		t.Errorf("preferences not persisted: %v", err)
	}
}

func TestRegister_RemoteFailure(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{registerErr: &api.Error{Kind: api.KindBadRequest, Status: 400, Message: "User already exists"}}
	mgr := newTestManager(t, kvstore.NewMemoryStore(), client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)

	if err := mgr.Register(ctx, "dup@b.c", "secret123"); !IsKind(err, KindRegistration) {
		t.Fatalf("got %v, want KindRegistration", err)
	}
}

func TestSetPreferences_GuestIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	client := &fakeClient{}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)

	prefs := Preferences{DefaultFromLang: "es", DefaultToLang: "en"}
	if err := mgr.SetPreferences(ctx, prefs); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}
	if got := client.prefsCalls; got != 0 {
		t.Errorf("remote sync attempted for guest: %d calls", got)
	}

	// A fresh manager over the same store sees the new preference.
	mgr2 := newTestManager(t, store, client, newFakeClock(), nil)
	_ = mgr2.Initialize(ctx)
	if got := mgr2.Snapshot().Preferences; got != prefs {
		t.Errorf("preferences after restart: got %+v", got)
	}
}

func TestSetPreferences_SyncFailureKeepsLocalWrite(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	client := &fakeClient{loginResult: api.LoginResult{User: testUser(), Token: "tok-1"}}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)
	_ = mgr.SignIn(ctx, "a@b.c", "secret")

	client.set(func(c *fakeClient) { c.prefsErr = &api.Error{Kind: api.KindServer, Status: 500, Message: "boom"} })

	prefs := Preferences{DefaultFromLang: "ja", DefaultToLang: "en"}
	err := mgr.SetPreferences(ctx, prefs)
	if !IsKind(err, KindPreferencesSync) {
		t.Fatalf("got %v, want KindPreferencesSync", err)
	}

	snap := mgr.Snapshot()
	if snap.Preferences != prefs {
		t.Errorf("local write rolled back: got %+v", snap.Preferences)
	}
	if !IsKind(snap.Err, KindPreferencesSync) {
		t.Errorf("Err: got %v", snap.Err)
	}

	raw, getErr := store.Get(ctx, keyPreferences)
	if getErr != nil {
		t.Fatalf("preferences not persisted: %v", getErr)
	}
	var stored Preferences
	_ = json.Unmarshal(raw, &stored)
	if stored != prefs {
		t.Errorf("persisted preferences: got %+v", stored)
	}
}

func TestResetKeepPreferences(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	client := &fakeClient{loginResult: api.LoginResult{User: testUser(), Token: "tok-1"}}
	mgr := newTestManager(t, store, client, newFakeClock(), nil)
	_ = mgr.Initialize(ctx)
	_ = mgr.SignIn(ctx, "a@b.c", "secret")

	mgr.ResetKeepPreferences(ctx)

	snap := mgr.Snapshot()
	if snap.State != StateGuest || snap.Session != nil {
		t.Errorf("state: %s %+v", snap.State, snap.Session)
	}
	if snap.Preferences.DefaultFromLang != "en" {
		t.Errorf("preferences lost: got %+v", snap.Preferences)
	}
	if _, err := store.Get(ctx, keyToken); !errors.Is(err, kvstore.ErrKeyNotFound) {
		t.Error("token still persisted after reset")
	}
	if _, err := store.Get(ctx, keyPreferences); err != nil {
		t.Errorf("preferences removed by keep-preferences reset: %v", err)
	}
}

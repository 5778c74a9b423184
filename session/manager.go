package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lingua-labs/linguaflow/api"
	"github.com/lingua-labs/linguaflow/kvstore"
)

const (
	defaultRevalidateInterval = 15 * time.Second
	defaultRevalidateDelay    = 5 * time.Second
	defaultLoginGrace         = 30 * time.Second
)

// APIClient is the slice of the REST client the Manager depends on.
// *api.Client satisfies it; tests substitute fakes.
type APIClient interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	ValidateSession(ctx context.Context, token string) (api.User, error)
	Logout(ctx context.Context, token string) error
	UpdatePreferences(ctx context.Context, token string, prefs api.Preferences) error
}

// Config configures a Manager.
type Config struct {
	// Store persists the cached user, token and preferences.
	Store kvstore.Store

	// Client reaches the remote auth/preferences API.
	Client APIClient

	// RevalidateInterval is the period between background token checks
	// (default 15s). Zero uses the default; negative disables the loop.
	RevalidateInterval time.Duration

	// RevalidateDelay is the wait before the first background check
	// (default 5s).
	RevalidateDelay time.Duration

	// LoginGrace is the window after a successful sign-in during which
	// revalidation failures are ignored (default 30s). A freshly minted
	// token can race the validator before it is durably visible
	// server-side.
	LoginGrace time.Duration

	// OnSessionExpired is invoked after the revalidator performs a full
	// reset, so the UI layer can navigate to its unauthenticated entry
	// point. Called outside the Manager's lock.
	OnSessionExpired func()

	// Now overrides the clock (tests).
	Now func() time.Time

	Observer Observer
	Logger   *slog.Logger
}

// Manager is the single source of truth for the current user, the
// credential used to authorize API calls, and the cached preferences.
// It reconciles the local cache with server truth and publishes
// read-only snapshots to consumers.
type Manager struct {
	store     kvstore.Store
	client    APIClient
	logger    *slog.Logger
	observer  Observer
	interval  time.Duration
	delay     time.Duration
	grace     time.Duration
	now       func() time.Time
	onExpired func()

	mu          sync.Mutex
	version     uint64
	state       State
	session     *Session
	prefs       Preferences
	isLoading   bool
	isAuthLoad  bool
	isLoggingIn bool
	lastLoginAt time.Time
	lastErr     error
	initialized bool

	// revalidator lifecycle
	cancel context.CancelFunc
	done   chan struct{}

	// serializes revalidation passes so at most one validation call is
	// in flight at a time
	runMu sync.Mutex
}

// NewManager creates a Manager in the Uninitialized state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("session: api client is required")
	}
	if cfg.RevalidateInterval == 0 {
		cfg.RevalidateInterval = defaultRevalidateInterval
	}
	if cfg.RevalidateDelay == 0 {
		cfg.RevalidateDelay = defaultRevalidateDelay
	}
	if cfg.LoginGrace == 0 {
		cfg.LoginGrace = defaultLoginGrace
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:     cfg.Store,
		client:    cfg.Client,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		interval:  cfg.RevalidateInterval,
		delay:     cfg.RevalidateDelay,
		grace:     cfg.LoginGrace,
		now:       cfg.Now,
		onExpired: cfg.OnSessionExpired,
		state:     StateUninitialized,
	}, nil
}

// Snapshot returns a copy of the current published state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:         m.state,
		Preferences:   m.prefs,
		IsLoading:     m.isLoading,
		IsAuthLoading: m.isAuthLoad,
		IsLoggingIn:   m.isLoggingIn,
		LastLoginAt:   m.lastLoginAt,
		Err:           m.lastErr,
	}
	if m.session != nil {
		cp := *m.session
		snap.Session = &cp
	}
	return snap
}

// Initialize resolves the cached credentials against the server and
// always terminates in Guest or Authenticated, never in Initializing.
// It runs once; subsequent calls are no-ops. On success it starts the
// background revalidation loop, which runs until Close.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.state = StateInitializing
	m.isLoading = true
	m.lastErr = nil
	m.mu.Unlock()

	err := m.initialize(ctx)

	m.mu.Lock()
	m.isLoading = false
	if m.state == StateInitializing {
		// Initializing must never be left standing.
		m.state = StateGuest
	}
	m.mu.Unlock()

	m.startRevalidator()
	return err
}

func (m *Manager) initialize(ctx context.Context) error {
	cachedUser, userErr := m.loadUser(ctx)
	token, tokenErr := m.loadToken(ctx)
	prefs, prefsOK := m.loadPreferences(ctx)

	if userErr != nil || tokenErr != nil {
		cause := userErr
		if cause == nil {
			cause = tokenErr
		}
		m.logger.Warn("failed to read cached credentials", "error", cause)
		sessErr := &Error{Kind: KindValidation, Err: cause}
		m.resetCredentials(ctx, sessErr)
		return sessErr
	}

	if cachedUser == nil || token == "" {
		// No usable credential pair. Drop any half-present token but
		// keep whatever preferences were last persisted.
		_ = m.store.Delete(ctx, keyToken)
		m.commit(func() {
			m.state = StateGuest
			m.session = nil
			if prefsOK {
				m.prefs = prefs
			}
		})
		return nil
	}

	validated, err := m.client.ValidateSession(ctx, token)
	if err != nil {
		m.logger.Info("cached session rejected during startup", "error", err)
		// Session and token are cleared together; preferences survive
		// the transition back to guest.
		_ = m.store.Delete(ctx, keyUser)
		_ = m.store.Delete(ctx, keyToken)
		m.commit(func() {
			m.state = StateGuest
			m.session = nil
			if prefsOK {
				m.prefs = prefs
			}
			m.lastErr = wrapAPIError(err, KindSessionExpired)
		})
		if api.IsKind(err, api.KindNetwork) {
			return &Error{Kind: KindNetwork, Err: err}
		}
		return nil
	}

	sess := &Session{
		UserID:    cachedUser.ID,
		Email:     cachedUser.Email,
		Token:     token,
		CreatedAt: m.now(),
	}
	if validated.Email != "" {
		sess.Email = validated.Email
	}

	m.commit(func() {
		m.state = StateAuthenticated
		m.session = sess
		if prefsOK {
			m.prefs = prefs
		}
	})
	m.logger.Info("session restored", "user_id", sess.UserID)
	return nil
}

// SignIn authenticates with the server and establishes a session. On
// failure the local credentials are cleared (preferences are kept) and
// the error is propagated to the caller.
func (m *Manager) SignIn(ctx context.Context, email, password string) (err error) {
	m.mu.Lock()
	m.isAuthLoad = true
	m.isLoggingIn = true
	m.lastErr = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isAuthLoad = false
		m.isLoggingIn = false
		m.mu.Unlock()
		m.observer.OperationCompleted("sign_in", err)
	}()

	result, loginErr := m.client.Login(ctx, email, password)
	if loginErr != nil {
		kind := KindValidation
		if api.IsKind(loginErr, api.KindNetwork) {
			kind = KindNetwork
		}
		sessErr := wrapAPIError(loginErr, kind)
		m.resetCredentials(ctx, sessErr)
		return sessErr
	}

	if persistErr := m.persistCredentials(ctx, result.User, result.Token); persistErr != nil {
		// Never leave a partial session on disk.
		_ = m.store.Delete(ctx, keyUser)
		_ = m.store.Delete(ctx, keyToken)
		m.setErr(persistErr)
		return persistErr
	}

	prefs := Preferences{
		DefaultFromLang: result.User.DefaultFromLang,
		DefaultToLang:   result.User.DefaultToLang,
	}
	if persistErr := m.persistPreferences(ctx, prefs); persistErr != nil {
		m.logger.Warn("failed to persist seeded preferences", "error", persistErr)
	}

	now := m.now()
	m.commit(func() {
		m.state = StateAuthenticated
		m.session = &Session{
			UserID:    result.User.ID,
			Email:     result.User.Email,
			Token:     result.Token,
			CreatedAt: now,
		}
		m.prefs = prefs
		m.lastLoginAt = now
	})
	m.logger.Info("signed in", "user_id", result.User.ID)
	return nil
}

// SignOut invalidates the session server-side, then clears all local
// state including preferences. If the remote call fails the local
// session is left intact and a logout error is surfaced; Reset remains
// available as the local escape hatch. Signing out while already a
// guest is a no-op.
func (m *Manager) SignOut(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil
	}
	token := m.session.Token
	m.isAuthLoad = true
	m.lastErr = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isAuthLoad = false
		m.mu.Unlock()
		m.observer.OperationCompleted("sign_out", err)
	}()

	if logoutErr := m.client.Logout(ctx, token); logoutErr != nil {
		sessErr := wrapAPIError(logoutErr, KindLogout)
		m.setErr(sessErr)
		return sessErr
	}

	m.resetAll(ctx, nil)
	m.logger.Info("signed out")
	return nil
}

// Register creates a new account. It does not establish a session; it
// seeds the default preference pair and leaves the caller to sign in
// separately.
func (m *Manager) Register(ctx context.Context, email, password string) (err error) {
	m.mu.Lock()
	m.isAuthLoad = true
	m.lastErr = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isAuthLoad = false
		m.mu.Unlock()
		m.observer.OperationCompleted("register", err)
	}()

	if regErr := m.client.Register(ctx, email, password); regErr != nil {
		sessErr := wrapAPIError(regErr, KindRegistration)
		m.setErr(sessErr)
		return sessErr
	}

	prefs := Preferences{DefaultFromLang: "en", DefaultToLang: "he"}
	if persistErr := m.persistPreferences(ctx, prefs); persistErr != nil {
		m.setErr(persistErr)
		return persistErr
	}
	m.commit(func() {
		m.prefs = prefs
	})
	return nil
}

// SetPreferences persists prefs locally, then attempts a best-effort
// server sync when a session exists. A failed sync surfaces a
// preferences-sync error but never rolls back the local write.
func (m *Manager) SetPreferences(ctx context.Context, prefs Preferences) (err error) {
	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.Token
	}
	m.isAuthLoad = true
	m.lastErr = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isAuthLoad = false
		m.mu.Unlock()
		m.observer.OperationCompleted("set_preferences", err)
	}()

	if persistErr := m.persistPreferences(ctx, prefs); persistErr != nil {
		m.setErr(persistErr)
		return persistErr
	}
	m.commit(func() {
		m.prefs = prefs
	})

	if token == "" {
		return nil
	}

	syncErr := m.client.UpdatePreferences(ctx, token, api.Preferences{
		DefaultFromLang: prefs.DefaultFromLang,
		DefaultToLang:   prefs.DefaultToLang,
	})
	if syncErr != nil {
		sessErr := wrapAPIError(syncErr, KindPreferencesSync)
		m.setErr(sessErr)
		m.logger.Warn("preference sync failed, local value kept", "error", syncErr)
		return sessErr
	}
	return nil
}

// Reset clears the session and the preferences from memory and from the
// persistent store, returning to Guest.
func (m *Manager) Reset(ctx context.Context) {
	m.resetAll(ctx, nil)
}

// ResetKeepPreferences clears only the credential entries, returning to
// Guest with the cached preferences intact. Used when deliberately
// entering a guest flow so a previously authenticated user's language
// defaults are not lost.
func (m *Manager) ResetKeepPreferences(ctx context.Context) {
	m.resetCredentials(ctx, nil)
}

// Close stops the background revalidation loop. It does not touch
// persisted state.
func (m *Manager) Close() {
	m.stopRevalidator()
}

// --- state commits ---

// commit applies fn to the state under the lock and bumps the version
// counter. Every mutation goes through commit so the revalidator can
// detect that its read is stale.
func (m *Manager) commit(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	fn()
}

// commitAt applies fn only when the version still matches expected,
// reporting whether the commit happened. The revalidator resolves its
// rejections through commitAt so a result that raced a newer sign-in is
// discarded instead of clobbering the fresh state.
func (m *Manager) commitAt(expected uint64, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != expected {
		return false
	}
	m.version++
	fn()
	return true
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) resetAll(ctx context.Context, cause error) {
	_ = m.store.Delete(ctx, keyUser)
	_ = m.store.Delete(ctx, keyToken)
	_ = m.store.Delete(ctx, keyPreferences)
	m.commit(func() {
		m.state = StateGuest
		m.session = nil
		m.prefs = Preferences{}
		m.lastErr = cause
	})
}

func (m *Manager) resetCredentials(ctx context.Context, cause error) {
	_ = m.store.Delete(ctx, keyUser)
	_ = m.store.Delete(ctx, keyToken)
	m.commit(func() {
		m.state = StateGuest
		m.session = nil
		m.lastErr = cause
	})
}

// --- persistence ---

func (m *Manager) loadUser(ctx context.Context) (*api.User, error) {
	raw, err := m.store.Get(ctx, keyUser)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load cached user: %w", err)
	}
	var user api.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("session: decode cached user: %w", err)
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

func (m *Manager) loadToken(ctx context.Context) (string, error) {
	raw, err := m.store.Get(ctx, keyToken)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("session: load cached token: %w", err)
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", fmt.Errorf("session: decode cached token: %w", err)
	}
	return token, nil
}

func (m *Manager) loadPreferences(ctx context.Context) (Preferences, bool) {
	raw, err := m.store.Get(ctx, keyPreferences)
	if err != nil {
		if !errors.Is(err, kvstore.ErrKeyNotFound) {
			m.logger.Warn("failed to read cached preferences", "error", err)
		}
		return Preferences{}, false
	}
	var prefs Preferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		m.logger.Warn("failed to decode cached preferences", "error", err)
		return Preferences{}, false
	}
	return prefs, true
}

func (m *Manager) persistCredentials(ctx context.Context, user api.User, token string) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("session: encode token: %w", err)
	}
	if err := m.store.Set(ctx, keyUser, userJSON); err != nil {
		return fmt.Errorf("session: persist user: %w", err)
	}
	if err := m.store.Set(ctx, keyToken, tokenJSON); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}
	return nil
}

func (m *Manager) persistPreferences(ctx context.Context, prefs Preferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("session: encode preferences: %w", err)
	}
	if err := m.store.Set(ctx, keyPreferences, prefsJSON); err != nil {
		return fmt.Errorf("session: persist preferences: %w", err)
	}
	return nil
}

func wrapAPIError(err error, kind Kind) *Error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return &Error{Kind: kind, Message: apiErr.Message, Err: err}
	}
	return &Error{Kind: kind, Err: err}
}

type noopObserver struct{}

func (noopObserver) OperationCompleted(string, error)                       {}
func (noopObserver) RevalidationCompleted(RevalidationOutcome, time.Duration) {}

package session

import (
	"context"
	"time"

	"github.com/lingua-labs/linguaflow/api"
)

// startRevalidator launches the background validation loop. The loop
// waits the configured initial delay before the first pass, then ticks
// at the configured interval until Close.
func (m *Manager) startRevalidator() {
	if m.interval < 0 {
		return
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)

		delay := time.NewTimer(m.delay)
		defer delay.Stop()
		select {
		case <-loopCtx.Done():
			return
		case <-delay.C:
		}
		m.Revalidate(loopCtx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.Revalidate(loopCtx)
			}
		}
	}()
}

func (m *Manager) stopRevalidator() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Revalidate runs a single validation pass: if a token is held, it is
// checked against the server, and a genuine rejection outside the login
// grace window performs a full reset and fires the expiry hook. Passes
// are serialized so at most one validation call is in flight at a time.
func (m *Manager) Revalidate(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.Token
	}
	version := m.version
	m.mu.Unlock()

	if token == "" {
		m.observer.RevalidationCompleted(RevalidationSkipped, 0)
		return
	}

	start := m.now()
	_, err := m.client.ValidateSession(ctx, token)
	elapsed := m.now().Sub(start)

	if err == nil {
		m.observer.RevalidationCompleted(RevalidationPassed, elapsed)
		return
	}

	if api.IsKind(err, api.KindNetwork) || api.IsKind(err, api.KindServer) {
		// Transient: a network hiccup or a server fault must not force
		// a logout.
		m.logger.Warn("session revalidation unreachable", "error", err)
		m.observer.RevalidationCompleted(RevalidationSkipped, elapsed)
		return
	}

	m.mu.Lock()
	if m.version != version {
		// State moved on while the check was in flight; this result is
		// stale and must not clobber the newer state.
		m.mu.Unlock()
		m.observer.RevalidationCompleted(RevalidationSkipped, elapsed)
		return
	}
	if !m.lastLoginAt.IsZero() && m.now().Sub(m.lastLoginAt) < m.grace {
		// Fresh login: the token may not be durably visible server-side
		// yet. Treat the rejection as a racing check.
		m.mu.Unlock()
		m.logger.Info("ignoring revalidation failure inside login grace window")
		m.observer.RevalidationCompleted(RevalidationSkipped, elapsed)
		return
	}
	loggingIn := m.isLoggingIn
	m.mu.Unlock()

	if loggingIn {
		// An interactive login is in flight; clear the stale credential
		// but do not yank the UI out from under the login flow. The
		// store is cleaned before the commit so a winning sign-in,
		// which persists before it commits, rewrites the keys last.
		_ = m.store.Delete(ctx, keyUser)
		_ = m.store.Delete(ctx, keyToken)
		if !m.commitAt(version, func() {
			m.state = StateGuest
			m.session = nil
			m.lastErr = nil
		}) {
			m.observer.RevalidationCompleted(RevalidationSkipped, elapsed)
			return
		}
		m.observer.RevalidationCompleted(RevalidationExpired, elapsed)
		return
	}

	m.logger.Warn("session expired, resetting", "error", err)
	_ = m.store.Delete(ctx, keyUser)
	_ = m.store.Delete(ctx, keyToken)
	_ = m.store.Delete(ctx, keyPreferences)
	if !m.commitAt(version, func() {
		m.state = StateGuest
		m.session = nil
		m.prefs = Preferences{}
		m.lastErr = &Error{Kind: KindSessionExpired, Err: err}
	}) {
		m.observer.RevalidationCompleted(RevalidationSkipped, elapsed)
		return
	}
	m.observer.RevalidationCompleted(RevalidationExpired, elapsed)

	if m.onExpired != nil {
		m.onExpired()
	}
}

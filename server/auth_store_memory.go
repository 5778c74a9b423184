package server

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemAuthStore is a thread-safe in-memory AuthStore for tests and
// ephemeral deployments.
type MemAuthStore struct {
	mu       sync.RWMutex
	users    map[string]UserRecord    // id -> user
	sessions map[string]SessionRecord // token -> session
	now      func() time.Time
}

// NewMemAuthStore creates an empty in-memory auth store.
func NewMemAuthStore() *MemAuthStore {
	return &MemAuthStore{
		users:    make(map[string]UserRecord),
		sessions: make(map[string]SessionRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemAuthStore) CreateUser(_ context.Context, rec UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(rec.Email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			return ErrUserExists
		}
	}
	if _, ok := s.users[rec.ID]; ok {
		return ErrUserExists
	}
	s.users[rec.ID] = rec
	return nil
}

func (s *MemAuthStore) GetUserByEmail(_ context.Context, email string) (UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			return u, true, nil
		}
	}
	return UserRecord{}, false, nil
}

func (s *MemAuthStore) GetUserByID(_ context.Context, id string) (UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemAuthStore) UpdateUserPreferences(_ context.Context, userID, fromLang, toLang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.DefaultFromLang = fromLang
	u.DefaultToLang = toLang
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

func (s *MemAuthStore) CreateSession(_ context.Context, sess SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *MemAuthStore) GetSessionByToken(_ context.Context, token string) (SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return SessionRecord{}, false, nil
	}
	if sess.ExpiresAt.Before(s.now()) {
		return SessionRecord{}, false, ErrSessionExpired
	}
	return sess, true, nil
}

func (s *MemAuthStore) DeleteSessionByToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, token)
	return nil
}

func (s *MemAuthStore) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *MemAuthStore) CleanExpiredSessions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for token, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

var _ AuthStore = (*MemAuthStore)(nil)

package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionDuration is how long a login session stays valid.
const SessionDuration = 24 * time.Hour

// DefaultFromLang and DefaultToLang seed new accounts without explicit
// preferences.
const (
	DefaultFromLang = "en"
	DefaultToLang   = "he"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type preferencesRequest struct {
	DefaultFromLang string `json:"defaultFromLang"`
	DefaultToLang   string `json:"defaultToLang"`
}

// userPayload is the user object embedded in login and validate
// responses. The session token rides along as signed_session_id so the
// client can persist it next to the profile.
type userPayload struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	DefaultFromLang string `json:"defaultFromLang"`
	DefaultToLang   string `json:"defaultToLang"`
	SignedSessionID string `json:"signed_session_id"`
}

func userPayloadFrom(u UserRecord, token string) userPayload {
	return userPayload{
		ID:              u.ID,
		Email:           u.Email,
		DefaultFromLang: u.DefaultFromLang,
		DefaultToLang:   u.DefaultToLang,
		SignedSessionID: token,
	}
}

// handleRegister creates a new account. It does not log the user in;
// the client follows up with an explicit login.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	now := time.Now().UTC()
	user := UserRecord{
		ID:              uuid.NewString(),
		Email:           req.Email,
		PasswordHash:    string(hash),
		DefaultFromLang: DefaultFromLang,
		DefaultToLang:   DefaultToLang,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.authStore.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("user creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

// handleLogin verifies credentials and issues a session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, found, err := s.authStore.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !found {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	now := time.Now().UTC()
	sess := SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(SessionDuration),
		CreatedAt: now,
	}
	if err := s.authStore.CreateSession(r.Context(), sess); err != nil {
		s.logger.Error("session creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userPayloadFrom(user, token),
		"token":   token,
	})
}

// handleValidateSession checks the bearer token and returns the
// associated profile when the session is still live.
func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	token := extractSessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	user, ok := s.lookupSessionUser(w, r, token)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userPayloadFrom(user, token),
	})
}

// handleLogout removes the session for the bearer token. A missing or
// unknown token still succeeds so retried logouts stay harmless.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := extractSessionToken(r)
	if token != "" {
		if err := s.authStore.DeleteSessionByToken(r.Context(), token); err != nil && !errors.Is(err, ErrSessionNotFound) {
			s.logger.Error("session deletion failed", "error", err)
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handlePreferences updates the caller's default language pair.
func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DefaultFromLang == "" || req.DefaultToLang == "" {
		writeError(w, http.StatusBadRequest, "defaultFromLang and defaultToLang are required")
		return
	}

	if err := s.authStore.UpdateUserPreferences(r.Context(), user.ID, req.DefaultFromLang, req.DefaultToLang); err != nil {
		s.logger.Error("preferences update failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// requireUser resolves the bearer token to a user, writing a 401 when it
// cannot.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (UserRecord, bool) {
	token := extractSessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return UserRecord{}, false
	}
	return s.lookupSessionUser(w, r, token)
}

// lookupSessionUser maps a token to its user, writing a 401 when the
// session is unknown, expired, or orphaned.
func (s *Server) lookupSessionUser(w http.ResponseWriter, r *http.Request, token string) (UserRecord, bool) {
	sess, found, err := s.authStore.GetSessionByToken(r.Context(), token)
	if err != nil && !errors.Is(err, ErrSessionExpired) {
		s.logger.Error("session lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session validation failed")
		return UserRecord{}, false
	}
	if !found {
		writeError(w, http.StatusUnauthorized, "invalid or expired session")
		return UserRecord{}, false
	}

	user, found, err := s.authStore.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		s.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session validation failed")
		return UserRecord{}, false
	}
	if !found {
		writeError(w, http.StatusUnauthorized, "invalid or expired session")
		return UserRecord{}, false
	}
	return user, true
}

func extractSessionToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func generateSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

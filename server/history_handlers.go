package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type saveTranslationRequest struct {
	FromLang       string `json:"fromLang"`
	ToLang         string `json:"toLang"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	Type           string `json:"type"`
}

// handleSaveTranslation stores a translation in the caller's history.
// The kind path segment selects the text or voice history.
func (s *Server) handleSaveTranslation(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !isValidHistoryKind(kind) {
		http.NotFound(w, r)
		return
	}

	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req saveTranslationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OriginalText == "" || req.TranslatedText == "" {
		writeError(w, http.StatusBadRequest, "original_text and translated_text are required")
		return
	}

	rec := &TranslationRecord{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Kind:           kind,
		FromLang:       req.FromLang,
		ToLang:         req.ToLang,
		OriginalText:   req.OriginalText,
		TranslatedText: req.TranslatedText,
		Type:           req.Type,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.historyStore.SaveTranslation(r.Context(), rec); err != nil {
		s.logger.Error("translation save failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to save translation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleListTranslations returns the caller's history of one kind,
// newest first.
func (s *Server) handleListTranslations(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !isValidHistoryKind(kind) {
		http.NotFound(w, r)
		return
	}

	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	records, err := s.historyStore.ListTranslations(r.Context(), user.ID, kind)
	if err != nil {
		s.logger.Error("translation list failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to fetch translations")
		return
	}
	if records == nil {
		records = []*TranslationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDeleteTranslation removes one history entry owned by the caller.
func (s *Server) handleDeleteTranslation(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := s.historyStore.DeleteTranslation(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, ErrTranslationNotFound) {
			writeError(w, http.StatusNotFound, "translation not found")
			return
		}
		s.logger.Error("translation delete failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to delete translation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleClearTranslations wipes the caller's entire history.
func (s *Server) handleClearTranslations(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := s.historyStore.ClearTranslations(r.Context(), user.ID); err != nil {
		s.logger.Error("translation clear failed", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "failed to clear translations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

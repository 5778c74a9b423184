package server

import (
	"encoding/json"
	"net/http"
)

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

// handleTranslate translates text for both guests and logged-in users.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" || req.TargetLang == "" {
		writeError(w, http.StatusBadRequest, "text and targetLang are required")
		return
	}

	result, err := s.translator.Translate(r.Context(), req.Text, req.SourceLang, req.TargetLang)
	if err != nil {
		s.logger.Error("translation failed", "error", err, "target_lang", req.TargetLang)
		writeError(w, http.StatusInternalServerError, "Failed to translate the text. Please ensure the text is translatable and try again.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"translatedText": result.TranslatedText,
		"detectedLang":   result.DetectedLang,
	})
}

// handleLanguages searches the supported language list. The query
// parameter must be present, though it may be empty.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("query") {
		writeError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, SearchLanguages(r.URL.Query().Get("query")))
}

// Package server implements the LinguaFlow HTTP API: account and session
// endpoints consumed by the mobile client's session manager, plus the
// LLM-backed translation proxy and per-user translation history.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	AuthStore    AuthStore
	HistoryStore HistoryStore
	Translator   Translator
	CORSOrigin   string
	MaxBody      int64
	Logger       *slog.Logger
}

// Server is the LinguaFlow HTTP API server.
type Server struct {
	authStore    AuthStore
	historyStore HistoryStore
	translator   Translator
	corsOrigin   string
	maxBody      int64
	logger       *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		authStore:    cfg.AuthStore,
		historyStore: cfg.HistoryStore,
		translator:   cfg.Translator,
		corsOrigin:   corsOrigin,
		maxBody:      maxBody,
		logger:       logger,
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	// Auth routes
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /validate-session", s.handleValidateSession)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /preferences", s.handlePreferences)

	// Translation routes
	mux.HandleFunc("POST /translate", s.handleTranslate)
	mux.HandleFunc("GET /languages", s.handleLanguages)

	// History routes
	mux.HandleFunc("POST /translations/{kind}", s.handleSaveTranslation)
	mux.HandleFunc("GET /translations/{kind}", s.handleListTranslations)
	mux.HandleFunc("DELETE /translations/delete/{id}", s.handleDeleteTranslation)
	mux.HandleFunc("DELETE /translations", s.handleClearTranslations)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the flat {"error": message} envelope the mobile
// client decodes.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

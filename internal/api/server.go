package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tutorhub/internal/session"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Registry is the slice of presence state the API needs for the health
// endpoint, kept as an interface to avoid coupling to the registry type.
type Registry interface {
	Stats() map[string]int
}

// Server is the REST surface: session creation and lookups. Real-time events
// go over the websocket endpoint, not here.
type Server struct {
	coordinator *session.Coordinator
	store       interfaces.SessionStore
	registry    Registry
	router      chi.Router
}

// NewServer builds the router.
func NewServer(coordinator *session.Coordinator, store interfaces.SessionStore, registry Registry) *Server {
	s := &Server{
		coordinator: coordinator,
		store:       store,
		registry:    registry,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)
		r.Get("/current", s.currentSession)
		r.Get("/{sessionID}", s.getSession)
	})
	r.Get("/health", s.healthCheck)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type createSessionRequest struct {
	User     types.User `json:"user"`
	Type     string     `json:"type"`
	SubTopic string     `json:"subTopic"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createSession opens a new session for a student.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	created, err := s.coordinator.Create(r.Context(), req.User, req.Type, req.SubTopic)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrMissingUserID),
			errors.Is(err, session.ErrVolunteerCreate),
			errors.Is(err, session.ErrMissingType),
			errors.Is(err, session.ErrInvalidType):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Failed to create session: %v", err)
			s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, http.StatusCreated, map[string]interface{}{"session": created})
}

// listSessions returns the live session snapshots.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.coordinator.List()})
}

// getSession resolves one session, live entry first then store.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	found, err := s.coordinator.GetByID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			log.Printf("Failed to get session %s: %v", sessionID, err)
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"session": found})
}

// currentSession returns the latest un-ended session for a user, so a client
// can resume after a page reload.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	role := r.URL.Query().Get("role")

	if userID == "" || !types.IsValidRole(role) {
		s.sendError(w, "user_id and a valid role are required", http.StatusBadRequest)
		return
	}

	current, err := s.coordinator.CurrentFor(r.Context(), userID, role)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "No current session", http.StatusNotFound)
		} else {
			log.Printf("Failed to find current session for %s: %v", userID, err)
			s.sendError(w, "Failed to find current session", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{"session": current})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}

	s.sendJSON(w, status, map[string]interface{}{
		"status":    http.StatusText(status),
		"database":  dbStatus,
		"presence":  s.registry.Stats(),
		"timestamp": time.Now(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

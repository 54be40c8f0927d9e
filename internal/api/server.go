package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bryanchriswhite/SnipClip/internal/config"
	"github.com/bryanchriswhite/SnipClip/internal/logger"
	"github.com/bryanchriswhite/SnipClip/internal/orchestrator"
	"github.com/bryanchriswhite/SnipClip/internal/output"
	"github.com/bryanchriswhite/SnipClip/internal/permission"
	"github.com/gorilla/mux"
)

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	orch      *orchestrator.Orchestrator
	configMgr *config.Manager
	cache     *permission.Cache
	sink      *output.Sink
	overlay   *OverlaySelector
}

// NewServer creates a new API server
func NewServer(orch *orchestrator.Orchestrator, configMgr *config.Manager, cache *permission.Cache, sink *output.Sink, overlay *OverlaySelector) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		orch:      orch,
		configMgr: configMgr,
		cache:     cache,
		sink:      sink,
		overlay:   overlay,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Capture pipeline
	api.HandleFunc("/capture", s.handleCapture).Methods("POST")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Permission management
	api.HandleFunc("/permission", s.handlePermissionStatus).Methods("GET")
	api.HandleFunc("/permission", s.handleRevokePermission).Methods("DELETE")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Selection overlay websocket
	api.HandleFunc("/overlay", s.overlay.Handle)

	// Overlay page
	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Start starts the HTTP server
func (s *Server) Start(port int) error {
	log := logger.WithComponent("api")
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", fmt.Sprintf("http://localhost%s", addr)).Msg("Starting server")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// enableCORS adds CORS headers to responses
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleCapture kicks off a capture. Repeated requests while one is in
// flight are absorbed.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	started := s.orch.RequestCapture()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"started": started,
		"state":   s.orch.State().String(),
	})
}

// handleStatus reports the pipeline state and the last delivery outcome
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"state":          s.orch.State().String(),
		"in_flight":      s.orch.InFlight(),
		"has_permission": s.cache.HasPermission(),
		"last_error":     s.orch.LastError(),
		"last_result":    s.sink.LastNotification(),
	})
}

func (s *Server) handlePermissionStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"has_permission": s.cache.HasPermission(),
	})
}

// handleRevokePermission drops the cached authorization so the next
// capture re-prompts
func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "cleared",
	})
}

// handleGetConfig returns the current configuration
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// handleUpdateConfig updates the configuration
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

// handleIndex serves the overlay page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(overlayPage))
}

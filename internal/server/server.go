// Package server provides the HTTP and WebSocket surface of the kathak
// daemon. The renderer drives the launcher through it.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/kathak/internal/app"
	"github.com/ayusman/kathak/internal/metrics"
	"github.com/ayusman/kathak/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       *app.App
}

// Server represents the HTTP server for the kathak daemon.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	s.mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Register launcher API handlers if an App is configured
	if s.config.App != nil {
		launcher := api.NewLauncherHandler(s.config.App)
		s.mux.Handle("/api/query", launcher)
		s.mux.Handle("/api/activate", launcher)
		s.mux.Handle("/api/form", launcher)
		s.mux.Handle("/api/escape", launcher)
		s.mux.Handle("/api/back", launcher)
		s.mux.Handle("/api/replay", launcher)

		historyHandler := api.NewHistoryHandler(s.config.App)
		s.mux.Handle("/api/history", historyHandler)
		s.mux.Handle("/api/history/", historyHandler)

		pluginsHandler := api.NewPluginsHandler(s.config.App)
		s.mux.Handle("/api/plugins", pluginsHandler)
		s.mux.Handle("/api/plugins/", pluginsHandler)

		eventsHandler := api.NewEventsHandler(s.config.App)
		s.mux.Handle("/api/events/external", eventsHandler)

		s.mux.Handle("/ws", NewEventsHub(s.config.App))
	}

	// Serve renderer assets if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

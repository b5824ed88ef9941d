// Package server provides the HTTP server for the eightball table detector.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/eightball/internal/app"
	"github.com/ayusman/eightball/internal/imageio"
	"github.com/ayusman/eightball/internal/logging"
	"github.com/ayusman/eightball/internal/server/api"
	"github.com/ayusman/eightball/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	// App enables the live endpoints: status, stream and detections.
	App    *app.App
	Logger *logrus.Logger

	// ImageOptions applies to uploads on /api/detect.
	ImageOptions imageio.Options
	// DetectRate is the per-client request rate allowed on /api/detect.
	// Zero disables limiting.
	DetectRate  float64
	DetectBurst int
}

// Server represents the HTTP server for the eightball application.
type Server struct {
	config     Config
	log        *logrus.Logger
	mux        *http.ServeMux
	handler    http.Handler
	start      time.Time
	detections *DetectionsHandler
	httpServer *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		log:    logging.OrDiscard(config.Logger),
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = requestID(accessLog(s.log, s.mux))
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		var activator api.Activator
		if s.config.App != nil {
			activator = s.config.App
		}
		profileHandler := api.NewProfileHandler(s.config.Store, activator, s.log)
		s.mux.Handle("/api/profiles", profileHandler)
		s.mux.Handle("/api/profiles/", profileHandler)
	}

	var detect http.Handler = api.NewDetectHandler(s.config.Store, s.config.ImageOptions, s.log)
	if s.config.DetectRate > 0 {
		burst := s.config.DetectBurst
		if burst < 1 {
			burst = 1
		}
		detect = rateLimit(newRateLimiter(rate.Limit(s.config.DetectRate), burst), s.log, detect)
	}
	s.mux.Handle("/api/detect", detect)

	if s.config.App != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App))
		s.detections = NewDetectionsHandler(s.config.App, s.log)
		s.mux.Handle("/api/detections", s.detections)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	writeJSON(w, http.StatusOK, response)
}

type statusResponse struct {
	Enabled bool          `json:"enabled"`
	Running bool          `json:"running"`
	Profile string        `json:"profile"`
	Latest  *app.Snapshot `json:"latest,omitempty"`
}

type statusRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleStatus handles GET and PUT on /api/status. PUT toggles detection.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	a := s.config.App

	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
			return
		}
		a.SetEnabled(*req.Enabled)
		s.log.WithField("enabled", *req.Enabled).Info("Detection toggled")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Enabled: a.IsEnabled(),
		Running: a.Running(),
		Profile: a.ProfileName(),
	}
	if snap, ok := a.Latest(); ok {
		resp.Latest = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("HTTP server listening")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the detections feed and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.detections != nil {
		s.detections.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

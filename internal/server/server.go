// Package server provides the HTTP server for sign recognition.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/recognize"
	"github.com/ayusman/handsign/internal/server/api"
	"github.com/ayusman/handsign/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Recognizer recognize.Recognizer
	Log        *zap.Logger
}

// Event is a message pushed to /api/events subscribers.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Event types.
const (
	EventRecognition = "recognition"
	EventText        = "text"
	EventToggle      = "toggle"
)

// Server represents the HTTP server of the recognition service.
type Server struct {
	config  Config
	mux     *http.ServeMux
	start   time.Time
	log     *zap.Logger
	hub     *EventHub
	enabled atomic.Bool

	mu        sync.RWMutex
	listeners []func(store.Recognition)
}

// New creates a new Server with the given configuration. The recognition
// switch starts from the stored setting, or on when there is no store.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    logger.OrNop(config.Log),
	}
	s.hub = NewEventHub(s.log)

	enabled := true
	if config.Store != nil {
		v, err := config.Store.Settings().Bool(store.SettingRecognitionEnabled, true)
		if err != nil {
			s.log.Warn("failed to read recognition setting", zap.Error(err))
		}
		enabled = v
	}
	s.enabled.Store(enabled)

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/recognition", s.handleToggle)
	s.mux.Handle("/api/events", s.hub)
	s.mux.Handle("/metrics", promhttp.Handler())

	if s.config.Recognizer != nil {
		recognizeHandler := api.NewRecognizeHandler(s.config.Recognizer, s.config.Store, s.log)
		recognizeHandler.Enabled = s.Enabled
		recognizeHandler.OnResult = s.notify
		s.mux.Handle("/api/recognize", recognizeHandler)
	}

	textHandler := api.NewTextHandler(s.log)
	textHandler.OnText = func(text string) {
		s.hub.Publish(Event{Type: EventText, Data: text, Timestamp: time.Now().UnixMilli()})
	}
	s.mux.Handle("/get_text", textHandler)

	// Register history handlers if Store is configured
	if s.config.Store != nil {
		runsHandler := api.NewRunsHandler(s.config.Store)
		s.mux.Handle("/api/runs", runsHandler)
		s.mux.Handle("/api/runs/", runsHandler)
		s.mux.Handle("/api/history", api.NewHistoryHandler(s.config.Store))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
		s.mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(s.config.StaticDir, "history.html"))
		})
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OnRecognition registers fn to be called after every answered recognition.
func (s *Server) OnRecognition(fn func(store.Recognition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Server) notify(rec store.Recognition) {
	s.hub.Publish(Event{Type: EventRecognition, Data: rec, Timestamp: rec.CreatedAt.UnixMilli()})

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.listeners {
		fn(rec)
	}
}

// Enabled reports whether recognition requests are answered.
func (s *Server) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled switches recognition on or off and persists the choice.
func (s *Server) SetEnabled(enabled bool) {
	if s.enabled.Swap(enabled) == enabled {
		return
	}
	if s.config.Store != nil {
		if err := s.config.Store.Settings().SetBool(store.SettingRecognitionEnabled, enabled); err != nil {
			s.log.Warn("failed to persist recognition setting", zap.Error(err))
		}
	}
	s.log.Info("recognition toggled", zap.Bool("enabled", enabled))
	s.hub.Publish(Event{Type: EventToggle, Data: enabled, Timestamp: time.Now().UnixMilli()})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":              "ok",
		"uptime":              time.Since(s.start).String(),
		"recognition_enabled": s.Enabled(),
		"subscribers":         s.hub.Clients(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleToggle reads (GET) or sets (PUT {"enabled": bool}) the recognition switch.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		s.SetEnabled(*req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"enabled": s.Enabled()})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr), zap.Int("pid", os.Getpid()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

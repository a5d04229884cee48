package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"focustrack/modules"
	"focustrack/modules/core/timer"
	"focustrack/modules/platform/config"
	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/logger"
	"focustrack/modules/platform/system"
)

// StateReader gives read access to the timer state
type StateReader interface {
	GetState() timer.State
}

// MetricsSource supplies daemon process metrics for /healthz
type MetricsSource interface {
	Get() system.Metrics
}

// Server is the HTTP/WebSocket surface of the daemon
type Server struct {
	addr     string
	hub      *daemon.Hub
	timer    StateReader
	auth     *Authenticator
	metrics  MetricsSource
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer creates the HTTP server. auth may be nil.
func NewServer(cfg config.ServerConfig, hub *daemon.Hub, timer StateReader, auth *Authenticator) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = config.DefaultServerAddr
	}
	return &Server{
		addr:     addr,
		hub:      hub,
		timer:    timer,
		auth:     auth,
		upgrader: newUpgrader(cfg.AllowedOrigins),
	}
}

// SetMetrics adds process metrics to the health report
func (s *Server) SetMetrics(m MetricsSource) {
	s.metrics = m
}

// Handler returns the HTTP handler with all routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /ws", s.auth.Middleware(http.HandlerFunc(s.serveWS)))
	mux.Handle("GET /api/state", s.auth.Middleware(http.HandlerFunc(s.handleState)))

	return mux
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is done
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()
	logger.Info("HTTP server listening on http://%s (WebSocket at /ws)", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown does not wait for hijacked WebSocket connections; the hub closes those
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "ok",
		"version":  modules.AppVersion,
		"channels": s.hub.ChannelCount(),
	}
	if s.metrics != nil {
		health["process"] = s.metrics.Get()
	}
	jsonResponse(w, health)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.timer.GetState())
}

func jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

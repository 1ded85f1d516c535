package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/printwarden/printwarden/internal/config"
	"github.com/printwarden/printwarden/internal/event"
	"github.com/printwarden/printwarden/internal/killswitch"
	"github.com/printwarden/printwarden/internal/monitor"
	"github.com/printwarden/printwarden/internal/policy"
	"github.com/printwarden/printwarden/internal/recovery"
	"github.com/printwarden/printwarden/internal/session"
	"github.com/printwarden/printwarden/internal/spooler"
)

// Server is the local status API and live event feed for the kiosk UI.
type Server struct {
	config     config.ServerConfig
	monitor    *monitor.Monitor
	countdown  *session.Countdown
	registry   *recovery.Registry
	adapter    spooler.Adapter
	rules      *policy.Engine
	kill       *killswitch.KillSwitch
	wsHub      *WebSocketHub
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the local API server and subscribes its event feed to
// the bus.
func NewServer(
	cfg config.ServerConfig,
	mon *monitor.Monitor,
	countdown *session.Countdown,
	registry *recovery.Registry,
	adapter spooler.Adapter,
	rules *policy.Engine,
	kill *killswitch.KillSwitch,
	bus *event.Bus,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:    cfg,
		monitor:   mon,
		countdown: countdown,
		registry:  registry,
		adapter:   adapter,
		rules:     rules,
		kill:      kill,
		wsHub:     NewWebSocketHub(logger, cfg.CORS),
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "api.Server"),
	}

	if bus != nil {
		bus.Subscribe(s.wsHub.Broadcast)
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Session
	s.mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	s.mux.HandleFunc("POST /api/session/extend", s.handleSessionExtend)
	s.mux.HandleFunc("POST /api/session/end", s.handleSessionEnd)

	// Recovery
	s.mux.HandleFunc("POST /api/recovery/resume-printers", s.handleResumePrinters)

	// System
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// WebSocket event feed
	s.mux.HandleFunc("GET /api/ws", s.wsHub.HandleWebSocket)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	if s.config.CORS {
		return corsMiddleware(s.mux)
	}
	return s.mux
}

// Start starts the API server on the given address.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("status API listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// corsMiddleware adds CORS headers for development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// APIAddr makes a loopback listen address from a port. The API carries
// session controls, so it is never exposed beyond the kiosk itself.
func APIAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/finvault/guardian/internal/adapters/web/handlers"
	"github.com/finvault/guardian/internal/adapters/web/websocket"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/alert"
	"github.com/finvault/guardian/internal/core/services/audit"
	"github.com/finvault/guardian/internal/core/services/guardian"
	"github.com/finvault/guardian/internal/core/services/stepup"
	"github.com/finvault/guardian/internal/core/services/token"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr     string
	Tokens   *token.Service
	Guardian *guardian.Guardian

	AuthHandler    *handlers.AuthHandler
	SessionHandler *handlers.SessionHandler
	AdminHandler   *handlers.AdminHandler
	AlertHub       *websocket.Hub

	srv *http.Server
}

// NewServer wires the handlers and the alert feed hub.
func NewServer(addr string, tokens *token.Service, orchestrator *stepup.Orchestrator, g *guardian.Guardian, users ports.UserRepository, auditor *audit.Recorder, stepLog ports.StepUpLogStore, dispatcher *alert.Dispatcher) *Server {
	hub := websocket.NewHub()
	dispatcher.SetBroadcast(hub.BroadcastAlert)

	return &Server{
		Addr:           addr,
		Tokens:         tokens,
		Guardian:       g,
		AuthHandler:    handlers.NewAuthHandler(orchestrator, users),
		SessionHandler: handlers.NewSessionHandler(g),
		AdminHandler:   handlers.NewAdminHandler(auditor, stepLog, dispatcher),
		AlertHub:       hub,
	}
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	handler := SetupRoutes(s)
	instrumentedHandler := otelhttp.NewHandler(handler, "guardian-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Web Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web Server shutdown error: %v", err)
		}
	}()

	log.Printf("Web server listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

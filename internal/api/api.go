// Package api exposes the Compass assessment orchestrator over HTTP.
//
// It provides endpoints for starting, continuing, and restarting assessment
// conversations, for fetching the final report, plus health and metrics
// surfaces for operations.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindsupport/compass/internal/models"
)

// Conversations is the orchestrator surface the API depends on.
type Conversations interface {
	HandleMessage(ctx context.Context, identity, text string) (*models.TurnResult, error)
	Restart(ctx context.Context, identity string) (*models.TurnResult, error)
	Report(ctx context.Context, identity string) (*models.AssessmentReport, error)
}

// Server hosts the HTTP API in front of the assessment orchestrator.
type Server struct {
	orch Conversations
	addr string
	srv  *http.Server
}

// NewServer creates a server bound to the given address.
func NewServer(orch Conversations, addr string) *Server {
	return &Server{orch: orch, addr: addr}
}

// routes builds the request multiplexer for all API endpoints.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/start", s.chatStartHandler)
	mux.HandleFunc("/chat/message", s.chatMessageHandler)
	mux.HandleFunc("/chat/restart", s.chatRestartHandler)
	mux.HandleFunc("/chat/report", s.chatReportHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
	}
	slog.Info("Server.Run: Compass API listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	slog.Info("Server.Shutdown: stopping API server")
	return s.srv.Shutdown(ctx)
}

// Package gateway exposes the runner registry over an OpenAI-compatible
// REST surface: chat completions (with SSE streaming), model listing,
// provider health, and multiplex fan-out.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"agentmux/internal/adapter/runner"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/middleware"
	"agentmux/internal/usecase/multiplex"
)

// Server is the HTTP front end over the runner registry.
type Server struct {
	registry   *runner.Registry
	dispatcher *multiplex.Dispatcher
	cfg        config.GatewayConfig
	logger     *slog.Logger
	httpSrv    *http.Server
	boundAddr  string
}

// NewServer creates a gateway server.
func NewServer(registry *runner.Registry, dispatcher *multiplex.Dispatcher, cfg config.GatewayConfig, logger *slog.Logger) *Server {
	return &Server{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Handler builds the gateway's full handler chain: routes wrapped in rate
// limiting, request logging, and security headers. ctx bounds the rate
// limiter's eviction goroutine.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("POST /v1/multiplex", s.handleMultiplex)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	if s.cfg.RequestsPerMin > 0 {
		h = middleware.RateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.BurstSize)(h)
	}
	h = middleware.RequestLog(s.logger, h)
	h = middleware.SecurityHeaders(h)
	return h
}

// Start begins serving. Blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: s.Handler(ctx)}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

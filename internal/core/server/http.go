// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openpa/chartcheck/internal/core/api"
	"github.com/openpa/chartcheck/internal/core/auth"
	"github.com/openpa/chartcheck/internal/core/config"
)

// HTTPServer manages HTTP server lifecycle.
type HTTPServer struct {
	server *http.Server
	config *config.ServerConfig
}

// NewHTTPServer builds the root router and server. Health and metrics
// endpoints are unauthenticated; the v1 API requires an API key.
func NewHTTPServer(cfg *config.ServerConfig, service *api.Service, authenticator *auth.Authenticator) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	root := chi.NewRouter()
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Handle("/metrics", promhttp.Handler())
	root.Mount("/v1", service.Router(authenticator))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &HTTPServer{server: server, config: cfg}, nil
}

// Start binds the listener and serves requests until Shutdown is called.
func (s *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}

	if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests with a 30-second timeout, then forces
// close.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(drainCtx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed, forced close: %w", err)
	}
	return nil
}

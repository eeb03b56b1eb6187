// Package web serves the read API over stored permits.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlasgrowth23/lapermits/internal/logging"
	"github.com/atlasgrowth23/lapermits/internal/web/handlers"
	"github.com/atlasgrowth23/lapermits/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     Config
	reader     handlers.PermitReader
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a server over reader. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(config Config, reader handlers.PermitReader, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	server := &Server{
		config:   config,
		reader:   reader,
		gatherer: gatherer,
		logger:   logger,
	}
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	apiHandler := &handlers.APIHandler{Reader: s.reader, Logger: s.logger}
	permitsHandler := &handlers.PermitsHandler{
		Reader:           s.reader,
		Logger:           s.logger,
		CuratedByDefault: s.config.Features.CuratedByDefault,
	}

	s.router.HandleFunc("/health", apiHandler.Health).Methods("GET")
	if s.config.Features.MetricsEnabled && s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/datasets", apiHandler.ListDatasets).Methods("GET")
	api.HandleFunc("/datasets/{dataset}/permits", permitsHandler.ListPermits).Methods("GET")
	api.HandleFunc("/datasets/{dataset}/permits/{id:[0-9]+}", permitsHandler.GetPermit).Methods("GET")
	api.HandleFunc("/datasets/{dataset}/permits/{id:[0-9]+}/history", permitsHandler.GetHistory).Methods("GET")

	s.router.Use(middleware.CORS(s.config.Server.CORSOrigin))
	s.router.Use(middleware.RequestLogging(s.logger))

	if s.config.Auth.Enabled {
		api.Use(middleware.APIKey(s.config.Auth.APIKey))
	}
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", "http://"+s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storecart/internal/auth"
	"github.com/vyrodovalexey/storecart/internal/config"
	"github.com/vyrodovalexey/storecart/internal/events"
	"github.com/vyrodovalexey/storecart/internal/handler"
	"github.com/vyrodovalexey/storecart/internal/middleware"
	"github.com/vyrodovalexey/storecart/internal/model"
	"github.com/vyrodovalexey/storecart/internal/store"
)

// Cross-origin settings sent on every response.
var (
	allowedMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPatch,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders = []string{
		"Content-Type",
		"Authorization",
	}
)

// Server represents the HTTP server.
type Server struct {
	httpServer    *http.Server
	router        *mux.Router
	config        *config.Config
	logger        *zap.Logger
	hub           *events.Hub
	eventsHandler *handler.EventsHandler
}

// New creates a new Server instance. A nil authenticator disables authentication
// and a nil hub is replaced with a private one.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	cartStore store.Store,
	hub *events.Hub,
	authenticator auth.Authenticator,
) *Server {
	if hub == nil {
		hub = events.NewHub(events.DefaultBufferSize)
	}

	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
		hub:    hub,
	}

	s.setupMiddleware(authenticator)
	s.setupRoutes(cartStore)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware(authenticator auth.Authenticator) {
	// Apply middleware in order (first applied = outermost)
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(s.cors()))

	if authenticator != nil {
		s.router.Use(mux.MiddlewareFunc(middleware.Auth(authenticator, s.logger)))
	}

	// Router middleware only wraps matched routes.
	fallback := middleware.Chain(
		middleware.RequestID(),
		middleware.Logging(s.logger),
		s.cors(),
	)
	s.router.NotFoundHandler = fallback(http.HandlerFunc(notFound))
	s.router.MethodNotAllowedHandler = fallback(http.HandlerFunc(methodNotAllowed))
}

func (s *Server) cors() middleware.Middleware {
	return middleware.CORS(s.config.CORSOrigins, allowedMethods, allowedHeaders)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(cartStore store.Store) {
	handler.NewHealthHandler(cartStore, s.logger).RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	// The events route goes first so that "events" is not matched as a cart ID.
	s.eventsHandler = handler.NewEventsHandler(s.hub, s.logger)
	s.eventsHandler.RegisterRoutes(s.router)

	handler.NewCartHandler(cartStore, s.hub, s.logger).RegisterRoutes(s.router)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.String("store_driver", s.config.StoreDriver),
		zap.String("auth_mode", s.config.AuthMode),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Event streams are hijacked connections that http.Server.Shutdown does not track.
	if s.eventsHandler != nil {
		s.eventsHandler.CloseAllConnections()
	}
	s.hub.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "resource not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{
		Code:    status,
		Message: message,
	})
}

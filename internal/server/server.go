// Package server hosts the image assistant websocket and its read-only
// HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/audit"
	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Deps are the handlers and stores the server exposes. Only Socket and
// History are required.
type Deps struct {
	Socket  http.Handler
	History chat.Store
	Audit   *audit.Store
	// Images is served under /files when images are stored on local disk.
	Images *objstore.LocalStore
}

// Server is the image assistant server.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *zap.Logger
}

// New creates a server with all routes registered.
func New(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.router = s.buildRouter()
	return s
}

// FilesPrefix is the URL path local images are served under.
const FilesPrefix = "/files"

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// The websocket is long-lived and must not sit behind the request timeout.
	if s.deps.Socket != nil {
		r.Handle("/ws", s.deps.Socket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if s.deps.History != nil {
			chat.RegisterRoutes(r, s.deps.History)
		}
		if s.deps.Audit != nil {
			audit.RegisterRoutes(r, s.deps.Audit)
		}
		if s.deps.Images != nil {
			files := http.StripPrefix(FilesPrefix, http.FileServer(http.Dir(s.deps.Images.Dir())))
			r.Handle(FilesPrefix+"/*", files)
		}
	})

	return r
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return fmt.Sprintf(":%d", s.cfg.Port) }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("imagehelper server listening", zap.String("addr", s.Addr()))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamgate/internal/config"
	"streamgate/internal/database"
	"streamgate/internal/gateway"
	"streamgate/internal/logging"
	"streamgate/internal/passcode"
)

// Deps are the services the HTTP surface fronts.
type Deps struct {
	Config    *config.Config
	DB        *database.DB
	Gateway   *gateway.Gateway
	Passcodes *passcode.Service
	Logger    *slog.Logger
}

// Server is the streamgate HTTP listener.
type Server struct {
	cfg       *config.Config
	db        *database.DB
	gateway   *gateway.Gateway
	passcodes *passcode.Service
	sessions  *SessionVerifier
	logger    *slog.Logger
	router    chi.Router
	http      *http.Server
}

// New builds the router and listener configuration.
func New(deps Deps) *Server {
	logger := logging.NewComponentLogger(deps.Logger, "server")
	s := &Server{
		cfg:       deps.Config,
		db:        deps.DB,
		gateway:   deps.Gateway,
		passcodes: deps.Passcodes,
		sessions:  NewSessionVerifier(deps.Config.Session.Secret, deps.Config.Session.CookieName),
		logger:    logger,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              deps.Config.Server.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: time.Duration(deps.Config.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       time.Duration(deps.Config.Server.IdleTimeout) * time.Second,
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(metrics)
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/media/*", s.handleMedia)

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)
		r.Route("/content", func(r chi.Router) {
			r.Get("/hls/{contentFileID}/{file}", s.handleSegment)
			r.Get("/download/{contentID}", s.handleDownload)
			r.Get("/{type}", s.handleCatalog)
			r.Get("/{type}/{contentID}", s.handlePlayer)
		})
		r.Route("/me", func(r chi.Router) {
			r.Get("/quota", s.handleQuota)
			r.Post("/passcodes/redeem", s.handleRedeem)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Run listens on the configured bind address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener and shuts down gracefully when ctx
// is cancelled. In-flight requests get the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()
	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logging.WarnWithContext(s.logger, "http shutdown incomplete", "http_shutdown_timeout",
			logging.Duration("timeout", timeout),
			logging.Error(err),
		)
		_ = s.http.Close()
	}
	<-errCh
	s.logger.Info("http server stopped")
	return nil
}

package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/blinkpay/internal/app"
	"github.com/kozaktomas/blinkpay/internal/web/handlers"
	"github.com/kozaktomas/blinkpay/internal/web/middleware"
)

const shutdownTimeout = 30 * time.Second

// Server represents the web server
type Server struct {
	rt             *app.Runtime
	log            zerolog.Logger
	router         *chi.Mux
	httpServer     *http.Server
	flows          *handlers.FlowRegistry
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(rt *app.Runtime) (*Server, error) {
	r := chi.NewRouter()
	log := rt.Log.With().Str("component", "web").Logger()

	sessionManager := middleware.NewSessionManager(rt.Config.Web.SessionSecret, rt.Store, rt.Log)
	sessionManager.SetSecureCookies(rt.Config.Web.SecureCookies)

	flows := handlers.NewFlowRegistry(rt.Log)
	sessionManager.OnExpire(flows.CloseSession)

	s := &Server{
		rt:             rt,
		log:            log,
		router:         r,
		flows:          flows,
		sessionManager: sessionManager,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(rt.Config.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	cfg := rt.Config.Web
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open for the lifetime of a flow
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// tears down every live flow.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting web server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.sessionManager.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info().Msg("shutting down web server")

		// Flows first so open event streams end before the server waits on them.
		s.flows.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Flows returns the live flow registry.
func (s *Server) Flows() *handlers.FlowRegistry {
	return s.flows
}

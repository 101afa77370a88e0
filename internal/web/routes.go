package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/blinkpay/internal/web/handlers"
	"github.com/kozaktomas/blinkpay/internal/web/middleware"
	"github.com/kozaktomas/blinkpay/internal/web/static"
)

// requestTimeout bounds every non-streaming API call. Face uploads wait on the
// face service, so it stays above its client timeout.
const requestTimeout = 2 * time.Minute

func (s *Server) setupRoutes() error {
	// Create handlers
	enrollHandler := handlers.NewEnrollHandler(s.rt, s.flows)
	scanHandler := handlers.NewScanHandler(s.rt, s.flows)
	paymentHandler := handlers.NewPaymentHandler(s.rt, s.flows)
	eventsHandler := handlers.NewEventsHandler(s.flows)
	dashboardHandler := handlers.NewDashboardHandler(s.rt)
	configHandler := handlers.NewConfigHandler(s.rt)
	sessionHandler := handlers.NewSessionHandler(s.sessionManager, s.flows)
	pagesHandler, err := handlers.NewPagesHandler(s.rt)
	if err != nil {
		return err
	}

	// Health check (no session required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Ending a session must not start a new one.
		r.Delete("/session", sessionHandler.End)

		r.Group(func(r chi.Router) {
			r.Use(middleware.EnsureSession(s.sessionManager))

			// Event streams are long-lived and must not be cut by the timeout.
			r.Get("/flows/{id}/events", eventsHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(requestTimeout))

				r.Get("/config", configHandler.Get)
				r.Get("/session", sessionHandler.Status)
				r.Get("/dashboard", dashboardHandler.Get)

				// Enrollment
				r.Post("/enrollments", enrollHandler.Create)
				r.Get("/enrollments/{id}", enrollHandler.Get)
				r.Delete("/enrollments/{id}", enrollHandler.Delete)
				r.Post("/enrollments/{id}/info", enrollHandler.Info)
				r.Post("/enrollments/{id}/wallet", enrollHandler.Wallet)
				r.Post("/enrollments/{id}/frames", enrollHandler.Frame)
				r.Post("/enrollments/{id}/face", enrollHandler.Face)

				// Scan to pay
				r.Post("/scans", scanHandler.Create)
				r.Get("/scans/{id}", scanHandler.Get)
				r.Delete("/scans/{id}", scanHandler.Delete)
				r.Post("/scans/{id}/start", scanHandler.Start)
				r.Post("/scans/{id}/frames", scanHandler.Frame)
				r.Post("/scans/{id}/face", scanHandler.Face)
				r.Post("/scans/{id}/liveness", scanHandler.Liveness)
				r.Post("/scans/{id}/restart", scanHandler.Restart)

				// Payments
				r.Post("/payments", paymentHandler.Create)
				r.Get("/payments/{id}", paymentHandler.Get)
				r.Delete("/payments/{id}", paymentHandler.Delete)
				r.Post("/payments/{id}/continue", paymentHandler.Continue)
				r.Post("/payments/{id}/back", paymentHandler.Back)
				r.Post("/payments/{id}/confirm", paymentHandler.Confirm)
			})
		})
	})

	// Browser assets
	s.router.Get("/assets/*", s.serveAssets)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.EnsureSession(s.sessionManager))
		r.Get("/", pagesHandler.Index)
		r.Get("/enroll", pagesHandler.Enroll)
		r.Get("/scan", pagesHandler.Scan)
		r.Get("/payment", pagesHandler.Payment)
		r.Get("/dashboard", pagesHandler.Dashboard)
	})
	s.router.NotFound(pagesHandler.NotFound)

	return nil
}

// serveAssets serves the embedded stylesheet and script
func (s *Server) serveAssets(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/assets")
	if path == "" || path == "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	r2 := r.Clone(r.Context())
	r2.URL.Path = path
	http.FileServer(static.GetFileSystem()).ServeHTTP(w, r2)
}

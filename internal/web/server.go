// Package web provides the HTTP API over the sheetbase service.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/sheetbase/internal/config"
	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/web/middleware"
)

// Server is the HTTP server for the sheetbase API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer builds the router for service using cfg's server, import and
// security settings.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes. Identity runs ahead
// of the request logger so log entries carry the user id.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Identity(&s.cfg.Security))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type", middleware.APIKeyHeader,
			s.cfg.Security.UserIDHeader, s.cfg.Security.UserRoleHeader,
		},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
		MaxAge:         300,
	}))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes. Members may read and add rows;
// leaders and admins change schemas and run bulk transfers; only admins
// delete tables or read the operation log.
func (s *Server) setupRoutes() {
	editors := middleware.RequireRole(core.RoleAdmin, core.RoleLeader)
	admins := middleware.RequireRole(core.RoleAdmin)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))
		r.Use(middleware.RequireIdentity)

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", s.handleListTables)
			r.With(editors).Post("/", s.handleCreateTable)
			r.With(admins).Delete("/", s.handleDeleteAllTables)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTable)
				r.With(editors).Put("/", s.handleUpdateTable)
				r.With(admins).Delete("/", s.handleDeleteTable)

				// Auto-increment
				r.Post("/check-auto-increment", s.handleCheckAutoIncrement)
				r.Get("/sequences", s.handleListSequences)
				r.With(editors).Post("/sequences/reconcile", s.handleReconcileSequence)
				r.With(editors).Post("/allocate", s.handleAllocate)

				// CSV transfer
				r.Get("/export", s.handleExportTableCSV)
				r.With(editors).Post("/import", s.handleImportTableCSV)

				r.Route("/rows", func(r chi.Router) {
					r.Get("/", s.handleListRows)
					r.Post("/", s.handleInsertRow)
					r.Post("/batch", s.handleBatchInsertRows)
					r.With(editors).Post("/batch-delete", s.handleDeleteRows)
					r.Get("/{rowID}", s.handleGetRow)
					r.Put("/{rowID}", s.handleUpdateRow)
					r.With(editors).Delete("/{rowID}", s.handleDeleteRow)
				})
			})
		})

		r.Get("/reports/{id}/stats", s.handleStats)

		// Workbook transfer
		r.Get("/export-all-data", s.handleExportWorkbook)
		r.With(editors).Post("/import-data", s.handleImportWorkbook)
		r.Get("/import-status", s.handleImportStatus)

		r.With(admins).Get("/operations", s.handleListOperations)
	})
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	sc := s.cfg.Server
	s.server = &http.Server{
		Addr:         sc.Addr(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

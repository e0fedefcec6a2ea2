// Package api exposes the engine's operations over HTTP.
//
// Endpoints accept and return the JSON envelope defined in models. Domain
// errors map onto HTTP statuses by kind: validation 400, not found 404,
// conflict 409, generation 502, transient storage 503.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/salasoft/battleplan/internal/analytics"
	"github.com/salasoft/battleplan/internal/catalog"
	"github.com/salasoft/battleplan/internal/enrollment"
	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
)

// planGenerator is the slice of the planner the server needs.
type planGenerator interface {
	GeneratePlan(ctx context.Context, req models.GeneratePlanRequest) (*models.PlanDefinition, error)
}

// Server wires the engine components behind the HTTP surface.
type Server struct {
	catalog    *catalog.Catalog
	tracker    *enrollment.Tracker
	processor  *enrollment.CompletionProcessor
	aggregator *analytics.Aggregator
	generator  planGenerator
	clock      schedule.Clock

	httpServer *http.Server
}

// Opts holds server configuration.
type Opts struct {
	Addr      string
	Generator planGenerator
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithGenerator attaches an AI plan generator. Without one the generate
// endpoint reports the feature unavailable.
func WithGenerator(g planGenerator) Option {
	return func(o *Opts) { o.Generator = g }
}

// NewServer creates the HTTP server around the engine components.
func NewServer(cat *catalog.Catalog, tracker *enrollment.Tracker, processor *enrollment.CompletionProcessor, aggregator *analytics.Aggregator, clock schedule.Clock, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080"}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		catalog:    cat,
		tracker:    tracker,
		processor:  processor,
		aggregator: aggregator,
		generator:  cfg.Generator,
		clock:      clock,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Router builds the route tree. Exposed for handler tests.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/mission-types", s.missionTypesHandler)

	r.Route("/plans", func(r chi.Router) {
		r.Post("/", s.createPlanHandler)
		r.Get("/", s.listPlansHandler)
		r.Post("/generate", s.generatePlanHandler)
		r.Get("/{planID}", s.getPlanHandler)
		r.Post("/{planID}/publish", s.publishPlanHandler)
	})

	r.Post("/enrollments", s.startPlanHandler)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/enrollments", s.listEnrollmentsHandler)
		r.Get("/enrollments/{planID}", s.getEnrollmentHandler)
		r.Get("/enrollments/{planID}/today", s.todayMissionsHandler)
		r.Post("/enrollments/{planID}/missions/{missionID}/complete", s.completeMissionHandler)
		r.Get("/report", s.reportHandler)
		r.Get("/calendar", s.calendarHandler)
	})

	return r
}

// Run starts serving and blocks until the context is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

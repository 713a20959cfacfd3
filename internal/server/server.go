package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/gradebox/internal/exercise"
	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/sandbox"
	"github.com/michaelbrown/gradebox/internal/storage"
)

// maxBodyBytes caps request bodies; submissions are small source files.
const maxBodyBytes = 1 << 20

// Deps are the collaborators the server is built from. Store and Metrics
// are optional.
type Deps struct {
	Runner        sandbox.Sandbox
	Grader        *grader.Grader
	Catalog       *exercise.Catalog
	Store         storage.Store
	Metrics       http.Handler
	PassThreshold float64
	Logger        *slog.Logger
}

// Server is the HTTP server for the gradebox API.
type Server struct {
	deps   Deps
	runs   *RunManager
	log    *slog.Logger
	router chi.Router
	http   *http.Server
}

// New creates a new Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog, _ = exercise.NewCatalog()
	}
	if deps.PassThreshold == 0 {
		deps.PassThreshold = grader.DefaultPassThreshold
	}
	s := &Server{
		deps:   deps,
		runs:   NewRunManager(),
		log:    deps.Logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)

		r.Post("/run", s.handleRun)
		r.Post("/grade", s.handleGrade)

		// WebSocket (no JSON content-type)
		r.Get("/grade/ws", s.handleGradeWebSocket)

		// Exercises
		r.Get("/exercises", s.handleListExercises)
		r.Get("/exercises/{id}", s.handleGetExercise)
		r.Post("/exercises/{id}/grade", s.handleGradeExercise)

		// Submission history
		r.Get("/submissions", s.handleListSubmissions)
		r.Get("/submissions/{id}", s.handleGetSubmission)
		r.Delete("/submissions/{id}", s.handleDeleteSubmission)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("gradebox server starting", "addr", "http://localhost"+addr)
	return s.http.ListenAndServe()
}

// Shutdown cancels in-flight gradings and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server", "active_runs", s.runs.Active())
	s.runs.CloseAll()

	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}

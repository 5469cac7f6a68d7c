// Package api exposes project management and lifecycle operations over
// HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/container"
	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/lifecycle"
	"github.com/RevCBH/shipyard/internal/logging"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/source"
)

// Lifecycle is the part of lifecycle.Manager served over HTTP.
type Lifecycle interface {
	ExecuteOperation(ctx context.Context, projectID string, op lifecycle.Operation) *lifecycle.Future
	OperationTimeout() time.Duration
	Status(ctx context.Context, projectID string) lifecycle.Status
	URL(ctx context.Context, projectID string) (string, bool)
	Metrics(ctx context.Context, p *project.Project) (container.Stats, error)
	ConfigureAutoRestart(ctx context.Context, projectID string, enabled bool) error
	Logs(ctx context.Context, projectID string, tail int) (string, error)
	Remove(ctx context.Context, projectID string) error
}

// Creator creates projects from a repository or an archive.
type Creator interface {
	Create(ctx context.Context, req source.Request) (*project.Project, error)
}

// EventLister returns recorded events, newest first.
type EventLister interface {
	ListEvents(ctx context.Context, projectID string, limit int) ([]events.Event, error)
}

// Deps are the collaborators of Server. History and Hub are optional.
type Deps struct {
	Lifecycle Lifecycle
	Repo      project.Repository
	Storage   project.StorageResolver
	Creator   Creator
	History   EventLister
	Hub       *Hub
	Auth      *Authenticator
	Bus       *events.Bus
}

// Server routes API requests.
type Server struct {
	deps   Deps
	router chi.Router
	logger *zap.Logger

	// maxUpload bounds multipart bodies
	maxUpload int64
}

// NewServer creates a Server with all routes registered.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		deps:      deps,
		router:    chi.NewRouter(),
		logger:    logging.OrNop(logger),
		maxUpload: source.DefaultLimits().MaxArchiveBytes + 1<<20,
	}
	s.routes()
	return s
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok\n")
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.deps.Auth.Middleware)

		r.Get("/events", s.handleEventStream)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(s.loadProject)
				r.Get("/", s.handleGetProject)
				r.Delete("/", s.handleDeleteProject)
				r.Get("/status", s.handleStatus)
				r.Get("/logs", s.handleLogs)
				r.Get("/events", s.handleProjectEvents)
				r.Get("/events/stream", s.handleProjectEventStream)
				r.Put("/autorestart", s.handleAutoRestart)
				r.Post("/{operation}", s.handleOperation)
			})
		})
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// loadProject resolves {id} and enforces ownership when auth is enabled.
func (s *Server) loadProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !project.ValidID(id) {
			writeError(w, http.StatusBadRequest, "invalid project id")
			return
		}

		p, err := s.deps.Repo.FindByID(r.Context(), id)
		if errors.Is(err, project.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		if err != nil {
			s.logger.Error("load project failed", zap.String("project", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load project")
			return
		}

		if s.deps.Auth != nil && p.OwnerID != Subject(r.Context()) {
			writeError(w, http.StatusForbidden, "not the project owner")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), projectKey, p)))
	})
}

func projectFrom(r *http.Request) *project.Project {
	p, _ := r.Context().Value(projectKey).(*project.Project)
	return p
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/git"
	"github.com/RevCBH/shipyard/internal/imagespec"
	"github.com/RevCBH/shipyard/internal/lifecycle"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/source"
)

// CreateProjectRequest is the JSON body of POST /api/v1/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	RepoURL     string `json:"repo_url"`
	Ref         string `json:"ref,omitempty"`
	AutoRestart bool   `json:"auto_restart,omitempty"`
}

// OperationResponse reports the outcome of a lifecycle operation.
type OperationResponse struct {
	lifecycle.Info
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// UsageResponse is a resource usage sample.
type UsageResponse struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ProjectDetails is the body of GET /api/v1/projects/{id}.
type ProjectDetails struct {
	Project *project.Project `json:"project"`
	Status  lifecycle.Status `json:"status"`
	URL     string           `json:"url,omitempty"`
	Usage   *UsageResponse   `json:"usage,omitempty"`
}

// AutoRestartRequest is the body of PUT /api/v1/projects/{id}/autorestart.
type AutoRestartRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Repo.FindAll(r.Context())
	if err != nil {
		s.logger.Error("list projects failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	out := make([]*project.Project, 0, len(all))
	for _, p := range all {
		if s.deps.Auth != nil && p.OwnerID != Subject(r.Context()) {
			continue
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateProject accepts either a JSON body naming a repository or a
// multipart form with an "archive" zip file.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	req := source.Request{OwnerID: Subject(r.Context())}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("archive")
		if err != nil {
			writeError(w, http.StatusBadRequest, "archive file is required")
			return
		}
		defer file.Close()

		req.Name = r.FormValue("name")
		req.AutoRestart, _ = strconv.ParseBool(r.FormValue("auto_restart"))
		req.Archive = file
		req.ArchiveSize = header.Size
	} else {
		var body CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		req.Name = body.Name
		req.RepoURL = body.RepoURL
		req.Ref = body.Ref
		req.AutoRestart = body.AutoRestart
	}

	p, err := s.deps.Creator.Create(r.Context(), req)
	if err != nil {
		var unsupported *imagespec.UnsupportedStackError
		switch {
		case errors.Is(err, source.ErrInvalidRequest), errors.Is(err, git.ErrInvalidURL), errors.Is(err, source.ErrUnsafeArchive):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &unsupported):
			writeError(w, http.StatusUnprocessableEntity, "could not detect a supported stack; add a Dockerfile to the project")
		default:
			s.logger.Error("create project failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)
	details := ProjectDetails{
		Project: p,
		Status:  s.deps.Lifecycle.Status(r.Context(), p.ID),
	}
	if details.Status == lifecycle.StatusRunning {
		details.URL, _ = s.deps.Lifecycle.URL(r.Context(), p.ID)
		if stats, err := s.deps.Lifecycle.Metrics(r.Context(), p); err == nil {
			details.Usage = &UsageResponse{CPUPercent: stats.CPUPercent, MemoryPercent: stats.MemoryPercent}
		}
	}
	writeJSON(w, http.StatusOK, details)
}

// handleDeleteProject removes the project through the lifecycle manager,
// which also drops the record, then deletes its source tree.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)

	if err := s.deps.Lifecycle.Remove(r.Context(), p.ID); err != nil {
		writeLifecycleError(w, err)
		return
	}
	if err := os.RemoveAll(s.deps.Storage.ProjectPath(p)); err != nil {
		s.logger.Warn("remove project files failed", zap.String("project", p.ID), zap.Error(err))
	}

	s.deps.Bus.Emit(events.NewEvent(events.ProjectDeleted, p.ID))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)
	info := lifecycle.Info{Status: s.deps.Lifecycle.Status(r.Context(), p.ID)}
	if info.Status == lifecycle.StatusRunning {
		info.ServerURL, _ = s.deps.Lifecycle.URL(r.Context(), p.ID)
	}
	writeJSON(w, http.StatusOK, info)
}

// handleOperation runs START, STOP or RESTART. With ?async=true it answers
// 202 PENDING at once; otherwise it waits up to the operation timeout.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)
	op, err := lifecycle.ParseOperation(chi.URLParam(r, "operation"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		future := s.deps.Lifecycle.ExecuteOperation(context.WithoutCancel(r.Context()), p.ID, op)
		select {
		case <-future.Done():
			// Rejected before scheduling (e.g. shutting down)
			if res := future.Await(r.Context()); res.Err != nil && errors.Is(res.Err, lifecycle.ErrClosed) {
				writeLifecycleError(w, res.Err)
				return
			}
		default:
		}
		writeJSON(w, http.StatusAccepted, OperationResponse{Info: lifecycle.Info{Status: lifecycle.StatusPending}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.Lifecycle.OperationTimeout())
	defer cancel()
	res := s.deps.Lifecycle.ExecuteOperation(ctx, p.ID, op).Await(ctx)

	resp := OperationResponse{Info: res.Info}
	if res.Err != nil {
		resp.Error = res.Err.Error()
		resp.Kind = string(res.Kind())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAutoRestart(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)
	var body AutoRestartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.deps.Lifecycle.ConfigureAutoRestart(r.Context(), p.ID, body.Enabled); err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

const (
	defaultLogTail = 100
	maxLogTail     = 10000
)

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)
	tail := defaultLogTail
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "tail must be a positive integer")
			return
		}
		tail = min(n, maxLogTail)
	}

	out, err := s.deps.Lifecycle.Logs(r.Context(), p.ID, tail)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(out))
}

func (s *Server) handleProjectEvents(w http.ResponseWriter, r *http.Request) {
	p := projectFrom(r)
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	out := []events.JSONEvent{}
	if s.deps.History != nil {
		recorded, err := s.deps.History.ListEvents(r.Context(), p.ID, limit)
		if err != nil {
			s.logger.Error("list events failed", zap.String("project", p.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list events")
			return
		}
		for _, e := range recorded {
			out = append(out, events.ToJSONEvent(e))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	// With auth enabled, streams are per project so owners only see their own
	if s.deps.Auth != nil {
		writeError(w, http.StatusForbidden, "use /projects/{id}/events/stream")
		return
	}
	s.deps.Hub.serveEvents(w, r, "")
}

func (s *Server) handleProjectEventStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	s.deps.Hub.serveEvents(w, r, projectFrom(r).ID)
}

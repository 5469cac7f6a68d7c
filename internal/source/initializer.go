package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RevCBH/shipyard/internal/events"
	"github.com/RevCBH/shipyard/internal/git"
	"github.com/RevCBH/shipyard/internal/imagespec"
	"github.com/RevCBH/shipyard/internal/logging"
	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/stack"
)

// ErrInvalidRequest is returned for creation requests missing required
// fields.
var ErrInvalidRequest = errors.New("invalid project request")

// Cloner fetches a repository working tree into dest.
type Cloner interface {
	Clone(ctx context.Context, repoURL, ref, dest string) error
}

// Request describes a new project. Exactly one of RepoURL or Archive must
// be set.
type Request struct {
	Name    string
	OwnerID string

	RepoURL string
	Ref     string

	Archive     io.ReaderAt
	ArchiveSize int64

	AutoRestart bool
}

// Initializer creates projects: it materializes the source tree, classifies
// it, writes a recipe when the project ships none and saves the record.
type Initializer struct {
	Repo    project.Repository
	Storage project.StorageResolver
	Cloner  Cloner
	Limits  Limits
	Bus     *events.Bus
	Logger  *zap.Logger

	analyzer  *stack.Analyzer
	generator *imagespec.Generator
}

// NewInitializer wires an Initializer with default archive limits.
func NewInitializer(repo project.Repository, storage project.StorageResolver, cloner Cloner, bus *events.Bus, logger *zap.Logger) *Initializer {
	logger = logging.OrNop(logger)
	return &Initializer{
		Repo:      repo,
		Storage:   storage,
		Cloner:    cloner,
		Limits:    DefaultLimits(),
		Bus:       bus,
		Logger:    logger,
		analyzer:  stack.NewAnalyzer(),
		generator: imagespec.NewGenerator(logger),
	}
}

// Create builds a project from req. On any failure the partially written
// source tree is removed and nothing is saved. An UNKNOWN stack without an
// author-supplied recipe is an *imagespec.UnsupportedStackError.
func (i *Initializer) Create(ctx context.Context, req Request) (*project.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if (req.RepoURL == "") == (req.Archive == nil) {
		return nil, fmt.Errorf("%w: exactly one of repository url or archive is required", ErrInvalidRequest)
	}
	if req.RepoURL != "" {
		if err := git.ValidateURL(req.RepoURL); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	p := &project.Project{
		ID:                 project.NewID(),
		Name:               name,
		OwnerID:            req.OwnerID,
		AutoRestartEnabled: req.AutoRestart,
		Source:             "upload",
		CreatedAt:          time.Now().UTC(),
	}
	dir := i.Storage.ProjectPath(p)

	if err := i.materialize(ctx, req, p, dir); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s, err := i.prepare(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	p.Stack = s

	if err := i.Repo.Save(ctx, p); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("save project: %w", err)
	}

	i.Logger.Info("project created",
		zap.String("project", p.ID),
		zap.String("name", p.Name),
		zap.Stringer("stack", p.Stack))
	i.Bus.Emit(events.NewEvent(events.ProjectCreated, p.ID).WithPayload(map[string]any{
		"name":  p.Name,
		"stack": p.Stack,
	}))
	return p, nil
}

func (i *Initializer) materialize(ctx context.Context, req Request, p *project.Project, dir string) error {
	if req.RepoURL != "" {
		p.Source = req.RepoURL
		if err := i.Cloner.Clone(ctx, req.RepoURL, req.Ref, dir); err != nil {
			return fmt.Errorf("clone repository: %w", err)
		}
		return nil
	}
	if err := ExtractZip(req.Archive, req.ArchiveSize, dir, i.Limits); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}
	return nil
}

// prepare classifies dir and generates a recipe when none exists.
func (i *Initializer) prepare(dir string) (stack.Stack, error) {
	s, err := i.analyzer.Classify(dir)
	if err != nil {
		return stack.Unknown, fmt.Errorf("classify project: %w", err)
	}
	if stack.HasRecipe(dir) {
		return s, nil
	}
	if err := i.generator.Generate(dir, s); err != nil {
		return s, err
	}
	return s, nil
}

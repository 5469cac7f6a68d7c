// Package project defines the deployable project record and the
// collaborators the lifecycle core consumes.
package project

import (
	"context"
	"crypto/rand"
	"errors"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/RevCBH/shipyard/internal/stack"
)

// ErrNotFound is returned when a project id is unknown.
var ErrNotFound = errors.New("project not found")

// Project is a user-submitted source tree deployed as one container.
// Only AutoRestartEnabled is changed by the lifecycle core.
type Project struct {
	// ID is opaque; projects created here get a ULID
	ID string `json:"id"`

	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`

	AutoRestartEnabled bool `json:"auto_restart_enabled"`

	// Stack is the detected stack, or stack.Unknown for author-supplied recipes
	Stack stack.Stack `json:"stack"`

	// Source records where the tree came from (git URL or "upload")
	Source string `json:"source,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Repository persists projects.
type Repository interface {
	// FindByID returns ErrNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*Project, error)
	FindAll(ctx context.Context) ([]*Project, error)

	// Save inserts or updates p.
	Save(ctx context.Context, p *Project) error

	// Delete removes the record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// StorageResolver maps a project to the absolute path of its source root.
type StorageResolver interface {
	ProjectPath(p *Project) string
}

// DirResolver stores each project under <Root>/<id>.
type DirResolver struct {
	Root string
}

// ProjectPath implements StorageResolver.
func (r DirResolver) ProjectPath(p *Project) string {
	return filepath.Join(r.Root, p.ID)
}

// NewID returns a new lexically sortable project id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ValidID reports whether id is safe to use in container names and file
// paths: 1-64 characters of [A-Za-z0-9_-].
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

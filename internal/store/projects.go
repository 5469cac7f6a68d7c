package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RevCBH/shipyard/internal/project"
	"github.com/RevCBH/shipyard/internal/stack"
)

// Projects adapts DB to project.Repository.
type Projects struct {
	db *DB
}

// Projects returns the project repository backed by db.
func (db *DB) Projects() *Projects {
	return &Projects{db: db}
}

const projectColumns = `id, name, owner_id, auto_restart_enabled, stack, source, created_at`

// FindByID retrieves a project by its ID.
// Returns project.ErrNotFound if the project does not exist.
func (r *Projects) FindByID(ctx context.Context, id string) (*project.Project, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, project.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// FindAll returns every project ordered by ID.
func (r *Projects) FindAll(ctx context.Context) ([]*project.Project, error) {
	return r.query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
}

// FindByOwner returns the projects owned by ownerID ordered by ID.
func (r *Projects) FindByOwner(ctx context.Context, ownerID string) ([]*project.Project, error) {
	return r.query(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner_id = ? ORDER BY id`, ownerID)
}

func (r *Projects) query(ctx context.Context, query string, args ...any) ([]*project.Project, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// Save inserts or updates a project.
func (r *Projects) Save(ctx context.Context, p *project.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			auto_restart_enabled = excluded.auto_restart_enabled,
			stack = excluded.stack,
			source = excluded.source
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.OwnerID,
		p.AutoRestartEnabled,
		string(p.Stack),
		nullString(p.Source),
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// Delete removes a project. Unknown ids are ignored.
func (r *Projects) Delete(ctx context.Context, id string) error {
	if _, err := r.db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*project.Project, error) {
	var (
		p         project.Project
		stackName string
		source    sql.NullString
	)
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.OwnerID,
		&p.AutoRestartEnabled,
		&stackName,
		&source,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Rows written by newer versions may carry stacks this build does not
	// know; treat them as author-supplied recipes
	p.Stack, err = stack.Parse(stackName)
	if err != nil {
		p.Stack = stack.Unknown
	}
	p.Source = source.String
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ project.Repository = (*Projects)(nil)

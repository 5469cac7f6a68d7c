package project

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository. It stores copies, so
// callers never share state with it.
type MemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]Project
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository(projects ...*Project) *MemoryRepository {
	r := &MemoryRepository{projects: make(map[string]Project)}
	for _, p := range projects {
		r.projects[p.ID] = *p
	}
	return r
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) FindAll(ctx context.Context) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Save(ctx context.Context, p *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = *p
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, id)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)

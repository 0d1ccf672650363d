package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/google/uuid"
)

// Memory is a ProjectStore for tests and dry runs.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]models.Project
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{projects: make(map[string]models.Project), now: func() time.Time { return time.Now().UTC() }}
}

func (m *Memory) Create(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := prepareCreate(p, uuid.NewString, m.now()); err != nil {
		return err
	}
	if _, ok := m.projects[p.ID]; ok {
		return fmt.Errorf("project %s already exists", p.ID)
	}
	m.projects[p.ID] = *p
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *Memory) Transition(_ context.Context, id string, from []models.Status, to models.Status, patch models.Patch) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := checkTransition(id, p.Status, from, to); err != nil {
		return nil, err
	}
	p.Status = to
	patch.Apply(&p)
	p.UpdatedAt = m.now()
	m.projects[id] = p
	return &p, nil
}

func (m *Memory) Claim(_ context.Context, id string, from, to models.Status, lease models.Lease) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	now := m.now()
	if err := checkClaim(&p, from, to, now); err != nil {
		return nil, err
	}
	p.Status = to
	p.RunID = lease.RunID
	p.RunExpiresAt = lease.ExpiresAt
	p.UpdatedAt = now
	m.projects[id] = p
	return &p, nil
}

func (m *Memory) Release(_ context.Context, id, runID string, from, to models.Status, patch models.Patch) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := checkRelease(&p, runID, from, to); err != nil {
		return nil, err
	}
	p.Status = to
	patch.Apply(&p)
	p.RunID = ""
	p.RunExpiresAt = time.Time{}
	p.UpdatedAt = m.now()
	m.projects[id] = p
	return &p, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(m.projects, id)
	return nil
}

func (m *Memory) List(_ context.Context) ([]*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }

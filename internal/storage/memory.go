package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/orbitlab/aso-pulse/internal/models"
)

// InMemoryOrgRepo is a map-backed OrgRepo used when PostgreSQL is not
// available and in tests. Stored values are copied on the way in and out
// to avoid external mutation.
type InMemoryOrgRepo struct {
	mu   sync.RWMutex
	orgs map[string]*models.Organization
}

// NewInMemoryOrgRepo creates an empty in-memory organization repo.
func NewInMemoryOrgRepo() *InMemoryOrgRepo {
	return &InMemoryOrgRepo{orgs: make(map[string]*models.Organization)}
}

// ListAll returns all organizations sorted by name.
func (r *InMemoryOrgRepo) ListAll(_ context.Context) ([]*models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Organization, 0, len(r.orgs))
	for _, o := range r.orgs {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetByID returns the organization or nil when absent.
func (r *InMemoryOrgRepo) GetByID(_ context.Context, id string) (*models.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if o, ok := r.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, nil
}

// Upsert inserts or replaces the organization.
func (r *InMemoryOrgRepo) Upsert(_ context.Context, o *models.Organization) error {
	if o == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orgs[o.ID] = &cp
	return nil
}

// Delete removes the organization if present.
func (r *InMemoryOrgRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orgs, id)
	return nil
}

// InMemoryAppRepo is a map-backed AppRepo.
type InMemoryAppRepo struct {
	mu   sync.RWMutex
	apps map[string]*models.App
}

// NewInMemoryAppRepo creates an empty in-memory app repo.
func NewInMemoryAppRepo() *InMemoryAppRepo {
	return &InMemoryAppRepo{apps: make(map[string]*models.App)}
}

// ListByOrg returns the org's apps sorted by name.
func (r *InMemoryAppRepo) ListByOrg(_ context.Context, orgID string) ([]*models.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.App
	for _, a := range r.apps {
		if a.OrgID == orgID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetByID returns the app or nil when absent.
func (r *InMemoryAppRepo) GetByID(_ context.Context, id string) (*models.App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.apps[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

// Upsert inserts or replaces the app.
func (r *InMemoryAppRepo) Upsert(_ context.Context, a *models.App) error {
	if a == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.apps[a.ID] = &cp
	return nil
}

// Delete removes the app if present.
func (r *InMemoryAppRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.apps, id)
	return nil
}

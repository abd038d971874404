// Package admin provides the thin CRUD services for tenant administration:
// organizations and their registered App Store apps. Validation and
// timestamp management live here; persistence is delegated to the
// storage repositories.
package admin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orbitlab/aso-pulse/internal/models"
	"github.com/orbitlab/aso-pulse/internal/storage"
)

// OrgService provides CRUD operations over organizations.
type OrgService struct {
	repo storage.OrgRepo
}

// NewOrgService constructs an OrgService backed by the given repo.
func NewOrgService(repo storage.OrgRepo) *OrgService {
	return &OrgService{repo: repo}
}

// ListOrgs returns all organizations.
func (s *OrgService) ListOrgs(ctx context.Context) ([]*models.Organization, error) {
	return s.repo.ListAll(ctx)
}

// GetOrg returns an organization by ID, nil when absent.
func (s *OrgService) GetOrg(ctx context.Context, id string) (*models.Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// UpsertOrg validates the organization, assigns an ID when missing,
// populates timestamps and saves it.
func (s *OrgService) UpsertOrg(ctx context.Context, o *models.Organization) error {
	if err := o.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	return s.repo.Upsert(ctx, o)
}

// DeleteOrg removes an organization.
func (s *OrgService) DeleteOrg(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

package admin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orbitlab/aso-pulse/internal/models"
	"github.com/orbitlab/aso-pulse/internal/storage"
)

// AppService provides CRUD operations over registered apps.
type AppService struct {
	repo storage.AppRepo
}

// NewAppService constructs an AppService backed by the given repo.
func NewAppService(repo storage.AppRepo) *AppService {
	return &AppService{repo: repo}
}

// ListApps returns the organization's apps.
func (s *AppService) ListApps(ctx context.Context, orgID string) ([]*models.App, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

// GetApp returns an app by ID, nil when absent.
func (s *AppService) GetApp(ctx context.Context, id string) (*models.App, error) {
	return s.repo.GetByID(ctx, id)
}

// UpsertApp validates the app, assigns an ID when missing, populates
// timestamps and saves it.
func (s *AppService) UpsertApp(ctx context.Context, a *models.App) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return s.repo.Upsert(ctx, a)
}

// DeleteApp removes an app registration.
func (s *AppService) DeleteApp(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

package storage

import (
	"context"

	"github.com/orbitlab/aso-pulse/internal/models"
)

// =============================================
// ORGANIZATION REPOSITORY
// =============================================

// OrgRepo defines operations for organization storage. Not-found lookups
// return (nil, nil).
type OrgRepo interface {
	ListAll(ctx context.Context) ([]*models.Organization, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	Upsert(ctx context.Context, o *models.Organization) error
	Delete(ctx context.Context, id string) error
}

// =============================================
// APP REPOSITORY
// =============================================

// AppRepo defines operations for registered App Store apps.
type AppRepo interface {
	ListByOrg(ctx context.Context, orgID string) ([]*models.App, error)
	GetByID(ctx context.Context, id string) (*models.App, error)
	Upsert(ctx context.Context, a *models.App) error
	Delete(ctx context.Context, id string) error
}

package models

import (
	"errors"
	"time"
)

// Organization is a tenant. Apps and insight queries are scoped to one.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan,omitempty"` // free, pro, enterprise
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required organization fields.
func (o *Organization) Validate() error {
	if o.Name == "" {
		return errors.New("organization name is required")
	}
	return nil
}

// App is an App Store app registered under an organization. StoreID is the
// numeric App Store identifier used when querying the analytics backend.
type App struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	Platform  string    `json:"platform,omitempty"` // ios, mac
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required app fields.
func (a *App) Validate() error {
	if a.OrgID == "" {
		return errors.New("app org_id is required")
	}
	if a.StoreID == "" {
		return errors.New("app store_id is required")
	}
	if a.Name == "" {
		return errors.New("app name is required")
	}
	return nil
}

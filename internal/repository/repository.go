// Package repository declares the storage interfaces the services depend on.
// internal/repository/sqlite provides the implementation.
package repository

import (
	"context"

	"github.com/sakif/js-playground/internal/model"
)

// SettingsRepository stores one Settings bag per owner.
type SettingsRepository interface {
	// GetSettings returns apperror.ErrNotFound when the owner has no bag.
	GetSettings(ctx context.Context, ownerID string) (*model.Settings, error)
	// UpsertSettings creates or replaces the owner's bag and sets UpdatedAt.
	UpsertSettings(ctx context.Context, s *model.Settings) error
	// UpdateCode changes only the code of an existing bag.
	UpdateCode(ctx context.Context, ownerID, code string) error
	DeleteSettings(ctx context.Context, ownerID string) error
}

type UserRepository interface {
	// Upsert inserts or refreshes a user keyed by GitHubID and fills in ID
	// and timestamps.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

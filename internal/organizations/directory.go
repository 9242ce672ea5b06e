package organizations

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/utils"
)

// Store is the persistence the directory needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	UpdateHours(ctx context.Context, id uuid.UUID, opens, closes models.Clock) (*models.Organization, error)
	UpdateAPIKey(ctx context.Context, id uuid.UUID, key string) (*models.Organization, error)
}

// Directory resolves tenants and validates their API keys.
type Directory struct {
	store  Store
	logger *zap.Logger
}

// NewDirectory creates a tenant directory.
func NewDirectory(store Store, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, logger: logger}
}

// Get returns the organization with the given id.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return d.store.GetByID(ctx, id)
}

// ValidateAPIKey returns the organization when orgID names an active organization whose key equals apiKey.
// Unknown, inactive and malformed organizations fail exactly like a wrong key.
func (d *Directory) ValidateAPIKey(ctx context.Context, orgID, apiKey string) (*models.Organization, error) {
	if orgID == "" || apiKey == "" {
		return nil, apperr.InvalidAPIKey()
	}
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, apperr.InvalidAPIKey()
	}
	org, err := d.store.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidAPIKey()
		}
		return nil, err
	}
	if !utils.SecureCompare(org.APIKey, apiKey) || !org.Active {
		return nil, apperr.InvalidAPIKey()
	}
	return org, nil
}

// UpdateHours validates and stores the organization's default hours.
func (d *Directory) UpdateHours(ctx context.Context, id uuid.UUID, openTime, closeTime string) (*models.Organization, error) {
	opens, err := models.ParseClock(openTime)
	if err != nil {
		return nil, apperr.Validation(err.Error(), "openTime")
	}
	closes, err := models.ParseClock(closeTime)
	if err != nil {
		return nil, apperr.Validation(err.Error(), "closeTime")
	}
	if opens >= closes {
		return nil, apperr.Validation("openTime must be before closeTime", "openTime", "closeTime")
	}
	org, err := d.store.UpdateHours(ctx, id, opens, closes)
	if err != nil {
		return nil, err
	}
	d.logger.Info("organization hours updated", zap.String("organization_id", id.String()),
		zap.Stringer("open", opens), zap.Stringer("close", closes))
	return org, nil
}

// RotateAPIKey replaces the organization's API key. The old key stops working immediately.
func (d *Directory) RotateAPIKey(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	key, err := utils.NewAPIKey()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	org, err := d.store.UpdateAPIKey(ctx, id, key)
	if err != nil {
		return nil, err
	}
	d.logger.Info("organization api key rotated", zap.String("organization_id", id.String()))
	return org, nil
}

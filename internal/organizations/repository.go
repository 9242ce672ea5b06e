package organizations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/database"
)

// Repository handles organization persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an organizations repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const orgColumns = `id, name, api_key, open_time, close_time, COALESCE(timezone, ''), active, created_at, updated_at`

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var (
		org         models.Organization
		opens, closes pgtype.Time
	)
	if err := row.Scan(&org.ID, &org.Name, &org.APIKey, &opens, &closes, &org.Timezone, &org.Active, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	org.OpenTime = models.ClockFromPgTime(opens)
	org.CloseTime = models.ClockFromPgTime(closes)
	return &org, nil
}

// Insert creates an organization on db, which may be an open transaction.
func (r *Repository) Insert(ctx context.Context, db database.DBTX, org *models.Organization) error {
	const q = `INSERT INTO organizations (name, api_key, open_time, close_time, timezone, active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at, updated_at`
	err := db.QueryRow(ctx, q, org.Name, org.APIKey, org.OpenTime.PgTime(), org.CloseTime.PgTime(), org.Timezone, org.Active).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return apperr.Conflict("organization name already taken")
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	org, err := scanOrganization(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// UpdateHours sets the default open and close times.
func (r *Repository) UpdateHours(ctx context.Context, id uuid.UUID, opens, closes models.Clock) (*models.Organization, error) {
	const q = `UPDATE organizations SET open_time = $2, close_time = $3, updated_at = NOW()
		WHERE id = $1 RETURNING ` + orgColumns
	org, err := scanOrganization(r.db.QueryRow(ctx, q, id, opens.PgTime(), closes.PgTime()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update organization hours: %w", err)
	}
	return org, nil
}

// UpdateAPIKey replaces the organization's API key.
func (r *Repository) UpdateAPIKey(ctx context.Context, id uuid.UUID, key string) (*models.Organization, error) {
	const q = `UPDATE organizations SET api_key = $2, updated_at = $3 WHERE id = $1 RETURNING ` + orgColumns
	org, err := scanOrganization(r.db.QueryRow(ctx, q, id, key, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("rotate api key: %w", err)
	}
	return org, nil
}

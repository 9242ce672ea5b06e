package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/database"
)

// OrganizationInserter writes a new organization on the given connection or transaction.
type OrganizationInserter interface {
	Insert(ctx context.Context, db database.DBTX, org *models.Organization) error
}

// Repository handles user persistence.
type Repository struct {
	db   database.DBTX
	orgs OrganizationInserter
}

// NewRepository creates an auth repository.
func NewRepository(db database.DBTX, orgs OrganizationInserter) *Repository {
	return &Repository{db: db, orgs: orgs}
}

const userColumns = `id, email, password_hash, full_name, phone, role, status, organization_id, verification_token, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.Role, &u.Status,
		&u.OrganizationID, &u.VerificationToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// Create inserts a new user and fills its generated fields.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	return insertUser(ctx, r.db, u)
}

// CreateWithOrganization inserts org and its first user in one transaction.
func (r *Repository) CreateWithOrganization(ctx context.Context, org *models.Organization, u *models.User) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.orgs.Insert(ctx, tx, org); err != nil {
			return err
		}
		u.OrganizationID = &org.ID
		return insertUser(ctx, tx, u)
	})
}

// Verify consumes a verification token: the user becomes verified and a pending admin becomes admin.
func (r *Repository) Verify(ctx context.Context, token string) (*models.User, error) {
	const q = `UPDATE users SET status = 'verified',
		role = CASE WHEN role = 'pending_admin' THEN 'admin' ELSE role END,
		verification_token = NULL, updated_at = NOW()
		WHERE verification_token = $1
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, q, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("invalid or already used verification token")
	}
	if err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}
	return u, nil
}

func insertUser(ctx context.Context, db database.DBTX, u *models.User) error {
	const q = `INSERT INTO users (email, password_hash, full_name, phone, role, status, organization_id, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := db.QueryRow(ctx, q, u.Email, u.Password, u.FullName, u.Phone, string(u.Role), string(u.Status),
		u.OrganizationID, u.VerificationToken).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return apperr.Conflict("email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

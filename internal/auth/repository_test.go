package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/database"
)

var userColumnNames = []string{"id", "email", "password_hash", "full_name", "phone", "role", "status", "organization_id", "verification_token", "created_at", "updated_at"}

type stubOrgInserter struct {
	err error
}

func (s stubOrgInserter) Insert(_ context.Context, _ database.DBTX, org *models.Organization) error {
	if s.err != nil {
		return s.err
	}
	org.ID = uuid.New()
	return nil
}

func TestRepository_GetByEmail(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	id, orgID := uuid.New(), uuid.New()
	now := time.Now()
	db.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("ana@example.com").
		WillReturnRows(pgxmock.NewRows(userColumnNames).
			AddRow(id, "ana@example.com", "hash", "Ana", "5551234567", "admin", "verified", &orgID, (*string)(nil), now, now))
	db.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(db, stubOrgInserter{})
	u, err := repo.GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, models.StatusVerified, u.Status)
	assert.Equal(t, orgID, *u.OrganizationID)

	_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_CreateWithOrganization(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	now := time.Now()
	db.ExpectBegin()
	db.ExpectQuery(`INSERT INTO users`).
		WithArgs("owner@example.com", "hash", "Owner", "", "pending_admin", "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(userID, now, now))
	db.ExpectCommit()

	repo := NewRepository(db, stubOrgInserter{})
	org := &models.Organization{Name: "Owner's Place"}
	u := &models.User{Email: "owner@example.com", Password: "hash", FullName: "Owner", Role: models.RolePendingAdmin, Status: models.StatusPending}
	require.NoError(t, repo.CreateWithOrganization(context.Background(), org, u))
	assert.Equal(t, userID, u.ID)
	assert.Equal(t, org.ID, *u.OrganizationID)
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_CreateWithOrganizationRollsBack(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	db.ExpectBegin()
	db.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	db.ExpectRollback()

	repo := NewRepository(db, stubOrgInserter{})
	u := &models.User{Email: "dup@example.com", Role: models.RolePendingAdmin, Status: models.StatusPending}
	err = repo.CreateWithOrganization(context.Background(), &models.Organization{Name: "Dup"}, u)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_CreateWithOrganizationOrgFailure(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	db.ExpectBegin()
	db.ExpectRollback()

	repo := NewRepository(db, stubOrgInserter{err: errors.New("boom")})
	err = repo.CreateWithOrganization(context.Background(), &models.Organization{Name: "X"}, &models.User{})
	assert.EqualError(t, err, "boom")
	assert.NoError(t, db.ExpectationsWereMet())
}

func TestRepository_Verify(t *testing.T) {
	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer db.Close()

	id, orgID := uuid.New(), uuid.New()
	now := time.Now()
	db.ExpectQuery(`UPDATE users SET status = 'verified'`).
		WithArgs("tok").
		WillReturnRows(pgxmock.NewRows(userColumnNames).
			AddRow(id, "owner@example.com", "hash", "Owner", "", "admin", "verified", &orgID, (*string)(nil), now, now))
	db.ExpectQuery(`UPDATE users SET status = 'verified'`).
		WithArgs("used").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(db, stubOrgInserter{})
	u, err := repo.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Nil(t, u.VerificationToken)

	_, err = repo.Verify(context.Background(), "used")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, db.ExpectationsWereMet())
}

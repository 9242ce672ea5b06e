package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/availability"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/database"
)

// Repository handles reservation persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a reservation repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const reservationColumns = `id, organization_id, user_id, contact_name, phone_number, date, time, guests, notes, status, archived, created_at, updated_at`

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var (
		r    models.Reservation
		date time.Time
		at   pgtype.Time
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.UserID, &r.ContactName, &r.PhoneNumber, &date, &at,
		&r.Guests, &r.Notes, &r.Status, &r.Archived, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Date = models.NewDate(date)
	r.Time = models.ClockFromPgTime(at)
	return &r, nil
}

func collect(rows pgx.Rows) ([]models.Reservation, error) {
	defer rows.Close()
	var list []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}

// Reserve inserts r if admit accepts the availability snapshot read inside the same transaction.
// The slot covering (date, time) is locked FOR UPDATE, so concurrent bookings of one slot see each
// other's committed guests. Lock contention surfaces as Conflict.
func (r *Repository) Reserve(ctx context.Context, res *models.Reservation, admit func(availability.Snapshot) error) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		snap, err := availability.LoadSnapshot(ctx, tx, res.OrganizationID, res.Date, res.Time, true)
		if err != nil {
			return err
		}
		if err := admit(snap); err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `INSERT INTO reservations
			(organization_id, user_id, contact_name, phone_number, date, time, guests, notes, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, status, archived, created_at, updated_at`,
			res.OrganizationID, res.UserID, res.ContactName, res.PhoneNumber, res.Date.Time, res.Time.PgTime(),
			res.Guests, res.Notes, models.ReservationPending).
			Scan(&res.ID, &res.Status, &res.Archived, &res.CreatedAt, &res.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
	if database.IsContention(err) {
		return apperr.Conflict("reservation could not be completed due to concurrent bookings, please retry")
	}
	return err
}

// GetByID returns a reservation of the organization. Reservations of other organizations are NotFound.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE id = $1 AND organization_id = $2`, id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("reservation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// UpdateStatus moves a reservation from one status to another. The update only applies while the row
// still holds from and is not archived; a concurrent change in between is reported as Conflict.
func (r *Repository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, from, to models.ReservationStatus) (*models.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `UPDATE reservations SET status = $4, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND status = $3 AND archived = FALSE
		RETURNING `+reservationColumns, id, orgID, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Conflict("reservation was changed concurrently, please retry")
	}
	if err != nil {
		return nil, fmt.Errorf("update reservation status: %w", err)
	}
	return res, nil
}

// Archive sets archived on a reservation of the organization. It reports whether the row changed;
// archiving an archived reservation returns it unchanged.
func (r *Repository) Archive(ctx context.Context, orgID, id uuid.UUID) (*models.Reservation, bool, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `UPDATE reservations SET archived = TRUE, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND archived = FALSE
		RETURNING `+reservationColumns, id, orgID))
	if err == nil {
		return res, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("archive reservation: %w", err)
	}
	res, err = r.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}

// List returns the organization's active or archived reservations ordered by (date, time).
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, archived bool) ([]models.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE organization_id = $1 AND archived = $2
		ORDER BY date, time, created_at`, orgID, archived)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return collect(rows)
}

// ListByUser returns every reservation made by the user ordered by (date, time).
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1
		ORDER BY date, time, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user reservations: %w", err)
	}
	return collect(rows)
}

// ArchiveStale archives every non-cancelled reservation whose date and time (UTC) lie before cutoff
// and returns the rows it changed.
func (r *Repository) ArchiveStale(ctx context.Context, cutoff time.Time) ([]models.Reservation, error) {
	rows, err := r.db.Query(ctx, `UPDATE reservations SET archived = TRUE, updated_at = NOW()
		WHERE archived = FALSE AND status <> 'cancelled' AND (date + time) < $1::timestamp
		RETURNING `+reservationColumns, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("archive stale reservations: %w", err)
	}
	return collect(rows)
}

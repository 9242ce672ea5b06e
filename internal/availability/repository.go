package availability

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

// SlotPatch changes a slot's capacity or blocked flag; nil fields are left as they are.
type SlotPatch struct {
	MaxGuests *int
	Blocked   *bool
}

// Repository handles weekly hours and slot persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an availability repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

const slotColumns = `id, organization_id, date, start_time, end_time, max_guests, blocked, created_at, updated_at`

func scanSlot(row pgx.Row) (*models.Slot, error) {
	var (
		s          models.Slot
		date       time.Time
		start, end pgtype.Time
	)
	if err := row.Scan(&s.ID, &s.OrganizationID, &date, &start, &end, &s.MaxGuests, &s.Blocked, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Date = models.NewDate(date)
	s.StartTime = models.ClockFromPgTime(start)
	s.EndTime = models.ClockFromPgTime(end)
	return &s, nil
}

// WeeklyHours returns the organization's weekly template ordered by day_of_week.
func (r *Repository) WeeklyHours(ctx context.Context, orgID uuid.UUID) ([]models.DayHours, error) {
	rows, err := r.db.Query(ctx, `SELECT day_of_week, start_time, end_time FROM weekly_hours
		WHERE organization_id = $1 ORDER BY day_of_week`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query weekly hours: %w", err)
	}
	defer rows.Close()
	var list []models.DayHours
	for rows.Next() {
		var (
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		list = append(list, models.DayHours{
			DayOfWeek: time.Weekday(day),
			StartTime: models.ClockFromPgTime(start),
			EndTime:   models.ClockFromPgTime(end),
		})
	}
	return list, rows.Err()
}

// ReplaceWeeklyHours overwrites the organization's whole template in one transaction.
func (r *Repository) ReplaceWeeklyHours(ctx context.Context, orgID uuid.UUID, hours []models.DayHours) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM weekly_hours WHERE organization_id = $1`, orgID); err != nil {
			return fmt.Errorf("clear weekly hours: %w", err)
		}
		for _, h := range hours {
			_, err := tx.Exec(ctx, `INSERT INTO weekly_hours (organization_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3, $4)`, orgID, int16(h.DayOfWeek), h.StartTime.PgTime(), h.EndTime.PgTime())
			if err != nil {
				return fmt.Errorf("insert weekly hours: %w", err)
			}
		}
		return nil
	})
}

// ListSlots returns the organization's slots, optionally bounded by date, ordered by (date, start_time).
func (r *Repository) ListSlots(ctx context.Context, orgID uuid.UUID, from, to *models.Date) ([]models.Slot, error) {
	var fromArg, toArg *time.Time
	if from != nil {
		fromArg = &from.Time
	}
	if to != nil {
		toArg = &to.Time
	}
	rows, err := r.db.Query(ctx, `SELECT `+slotColumns+` FROM availability_slots
		WHERE organization_id = $1
		AND ($2::date IS NULL OR date >= $2::date)
		AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date, start_time`, orgID, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()
	var list []models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// CreateSlot inserts a slot unless it overlaps another slot of the same organization and date.
// Concurrent creations for one organization and date serialize on a transaction-scoped advisory lock.
func (r *Repository) CreateSlot(ctx context.Context, slot *models.Slot) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || $2::text, 0))`,
			slot.OrganizationID.String(), slot.Date.String()); err != nil {
			return fmt.Errorf("lock slot date: %w", err)
		}
		var clash uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM availability_slots
			WHERE organization_id = $1 AND date = $2 AND start_time < $4 AND end_time > $3
			LIMIT 1`, slot.OrganizationID, slot.Date.Time, slot.StartTime.PgTime(), slot.EndTime.PgTime()).Scan(&clash)
		if err == nil {
			return apperr.Conflict("slot overlaps an existing slot")
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check slot overlap: %w", err)
		}
		err = tx.QueryRow(ctx, `INSERT INTO availability_slots (organization_id, date, start_time, end_time, max_guests, blocked)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			slot.OrganizationID, slot.Date.Time, slot.StartTime.PgTime(), slot.EndTime.PgTime(), slot.MaxGuests, slot.Blocked).
			Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("slot overlaps an existing slot")
		}
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
		return nil
	})
}

// UpdateSlot applies patch to a slot of the organization. Slots of other organizations are NotFound.
func (r *Repository) UpdateSlot(ctx context.Context, orgID, id uuid.UUID, patch SlotPatch) (*models.Slot, error) {
	const q = `UPDATE availability_slots
		SET max_guests = COALESCE($3, max_guests), blocked = COALESCE($4, blocked), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + slotColumns
	s, err := scanSlot(r.db.QueryRow(ctx, q, id, orgID, patch.MaxGuests, patch.Blocked))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("slot not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update slot: %w", err)
	}
	return s, nil
}

// DeleteSlot removes a slot of the organization. Slots of other organizations are NotFound.
func (r *Repository) DeleteSlot(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("slot not found")
	}
	return nil
}

// Snapshot loads the capacity snapshot for a preview, without locking.
func (r *Repository) Snapshot(ctx context.Context, orgID uuid.UUID, date models.Date, at models.Clock) (Snapshot, error) {
	return LoadSnapshot(ctx, r.db, orgID, date, at, false)
}

// LoadSnapshot reads the window governing (date, at) for the organization. With forUpdate set the matching
// slot row is locked until the surrounding transaction ends, so concurrent bookings of that slot serialize.
func LoadSnapshot(ctx context.Context, db database.DBTX, orgID uuid.UUID, date models.Date, at models.Clock, forUpdate bool) (Snapshot, error) {
	snap := Snapshot{Date: date}

	q := `SELECT ` + slotColumns + ` FROM availability_slots
		WHERE organization_id = $1 AND date = $2 AND start_time <= $3 AND end_time > $3`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	slot, err := scanSlot(db.QueryRow(ctx, q, orgID, date.Time, at.PgTime()))
	switch {
	case err == nil:
		snap.Slot = slot
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return snap, fmt.Errorf("load slot: %w", err)
	}

	if snap.Slot != nil {
		var booked int64
		err := db.QueryRow(ctx, `SELECT COALESCE(SUM(guests), 0) FROM reservations
			WHERE organization_id = $1 AND date = $2 AND time >= $3 AND time < $4
			AND status <> 'cancelled' AND archived = FALSE`,
			orgID, date.Time, snap.Slot.StartTime.PgTime(), snap.Slot.EndTime.PgTime()).Scan(&booked)
		if err != nil {
			return snap, fmt.Errorf("sum booked guests: %w", err)
		}
		snap.Booked = int(booked)
		return snap, nil
	}

	var start, end pgtype.Time
	err = db.QueryRow(ctx, `SELECT start_time, end_time FROM weekly_hours
		WHERE organization_id = $1 AND day_of_week = $2`, orgID, int16(date.Weekday())).Scan(&start, &end)
	switch {
	case err == nil:
		snap.Weekly = &models.DayHours{DayOfWeek: date.Weekday(), StartTime: models.ClockFromPgTime(start), EndTime: models.ClockFromPgTime(end)}
		return snap, nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return snap, fmt.Errorf("load weekly hours: %w", err)
	}

	err = db.QueryRow(ctx, `SELECT open_time, close_time FROM organizations WHERE id = $1`, orgID).Scan(&start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, apperr.NotFound("organization not found")
	}
	if err != nil {
		return snap, fmt.Errorf("load organization hours: %w", err)
	}
	snap.OpenTime = models.ClockFromPgTime(start)
	snap.CloseTime = models.ClockFromPgTime(end)
	return snap, nil
}

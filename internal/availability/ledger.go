package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

// Store is the persistence the ledger needs.
type Store interface {
	WeeklyHours(ctx context.Context, orgID uuid.UUID) ([]models.DayHours, error)
	ReplaceWeeklyHours(ctx context.Context, orgID uuid.UUID, hours []models.DayHours) error
	ListSlots(ctx context.Context, orgID uuid.UUID, from, to *models.Date) ([]models.Slot, error)
	CreateSlot(ctx context.Context, slot *models.Slot) error
	UpdateSlot(ctx context.Context, orgID, id uuid.UUID, patch SlotPatch) (*models.Slot, error)
	DeleteSlot(ctx context.Context, orgID, id uuid.UUID) error
	Snapshot(ctx context.Context, orgID uuid.UUID, date models.Date, at models.Clock) (Snapshot, error)
}

// Ledger manages an organization's availability: the weekly template, dated slots and capacity checks.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

// NewLedger creates an availability ledger.
func NewLedger(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// GetAvailability returns the weekly template ordered Monday through Sunday.
func (l *Ledger) GetAvailability(ctx context.Context, orgID uuid.UUID) ([]DayEntry, error) {
	hours, err := l.store.WeeklyHours(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return DayOrdered(hours), nil
}

// SetAvailability validates and stores the whole weekly template, replacing any previous one.
func (l *Ledger) SetAvailability(ctx context.Context, orgID uuid.UUID, hours []models.DayHours) ([]DayEntry, error) {
	if err := ValidateWeekly(hours); err != nil {
		return nil, err
	}
	if err := l.store.ReplaceWeeklyHours(ctx, orgID, hours); err != nil {
		return nil, err
	}
	l.logger.Info("weekly availability updated", zap.String("organization_id", orgID.String()), zap.Int("days", len(hours)))
	return DayOrdered(hours), nil
}

// CheckCapacity previews whether guests can be booked at (date, at) without reserving anything.
func (l *Ledger) CheckCapacity(ctx context.Context, orgID uuid.UUID, date models.Date, at models.Clock, guests int) (Decision, error) {
	if guests < 1 || guests > models.MaxGuests {
		return Decision{}, apperr.Validation(fmt.Sprintf("guests must be between 1 and %d", models.MaxGuests), "guests")
	}
	snap, err := l.store.Snapshot(ctx, orgID, date, at)
	if err != nil {
		return Decision{}, err
	}
	return Decide(snap, at, guests)
}

// ListSlots returns the organization's slots between from and to (inclusive, either may be nil).
func (l *Ledger) ListSlots(ctx context.Context, orgID uuid.UUID, from, to *models.Date) ([]models.Slot, error) {
	if from != nil && to != nil && to.Before(from.Time) {
		return nil, apperr.Validation("to must not be before from", "from", "to")
	}
	return l.store.ListSlots(ctx, orgID, from, to)
}

// CreateSlot validates and stores a new slot for the organization.
func (l *Ledger) CreateSlot(ctx context.Context, slot *models.Slot) error {
	if slot.StartTime >= slot.EndTime {
		return apperr.Validation("startTime must be before endTime", "startTime", "endTime")
	}
	if slot.MaxGuests < 1 || slot.MaxGuests > models.MaxGuests {
		return apperr.Validation(fmt.Sprintf("maxGuests must be between 1 and %d", models.MaxGuests), "maxGuests")
	}
	if err := l.store.CreateSlot(ctx, slot); err != nil {
		return err
	}
	l.logger.Info("slot created", zap.String("organization_id", slot.OrganizationID.String()),
		zap.String("slot_id", slot.ID.String()), zap.Stringer("date", slot.Date))
	return nil
}

// UpdateSlot changes a slot's capacity or blocked flag.
func (l *Ledger) UpdateSlot(ctx context.Context, orgID, id uuid.UUID, patch SlotPatch) (*models.Slot, error) {
	if patch.MaxGuests == nil && patch.Blocked == nil {
		return nil, apperr.Validation("nothing to update", "maxGuests", "blocked")
	}
	if patch.MaxGuests != nil && (*patch.MaxGuests < 1 || *patch.MaxGuests > models.MaxGuests) {
		return nil, apperr.Validation(fmt.Sprintf("maxGuests must be between 1 and %d", models.MaxGuests), "maxGuests")
	}
	return l.store.UpdateSlot(ctx, orgID, id, patch)
}

// DeleteSlot removes a slot. Existing reservations are kept and fall back to the weekly template.
func (l *Ledger) DeleteSlot(ctx context.Context, orgID, id uuid.UUID) error {
	return l.store.DeleteSlot(ctx, orgID, id)
}

package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

func mustDate(t *testing.T, s string) models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestLedger_Validation(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newMemStore(), nil)
	orgID := uuid.New()
	day := mustDate(t, "2024-12-23")

	_, err := l.CheckCapacity(ctx, orgID, day, 19*60, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	from, to := mustDate(t, "2024-12-24"), day
	_, err = l.ListSlots(ctx, orgID, &from, &to)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = l.CreateSlot(ctx, &models.Slot{OrganizationID: orgID, Date: day, StartTime: 20 * 60, EndTime: 19 * 60, MaxGuests: 2})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	err = l.CreateSlot(ctx, &models.Slot{OrganizationID: orgID, Date: day, StartTime: 19 * 60, EndTime: 20 * 60})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = l.UpdateSlot(ctx, orgID, uuid.New(), SlotPatch{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	zero := 0
	_, err = l.UpdateSlot(ctx, orgID, uuid.New(), SlotPatch{MaxGuests: &zero})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	tooMany := models.MaxGuests + 1
	_, err = l.UpdateSlot(ctx, orgID, uuid.New(), SlotPatch{MaxGuests: &tooMany})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	err = l.CreateSlot(ctx, &models.Slot{OrganizationID: orgID, Date: day, StartTime: 19 * 60, EndTime: 20 * 60, MaxGuests: tooMany})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = l.CheckCapacity(ctx, orgID, day, 19*60, tooMany)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = l.SetAvailability(ctx, orgID, []models.DayHours{{DayOfWeek: time.Monday, StartTime: 17 * 60, EndTime: 9 * 60}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLedger_CheckCapacityPrecedence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := NewLedger(store, nil)
	orgID := uuid.New()
	monday := mustDate(t, "2024-12-23")

	// Defaults: 09:00-21:00.
	d, err := l.CheckCapacity(ctx, orgID, monday, 8*60, 2)
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, SourceDefault, d.Source)

	_, err = l.SetAvailability(ctx, orgID, []models.DayHours{{DayOfWeek: time.Monday, StartTime: 7 * 60, EndTime: 12 * 60}})
	require.NoError(t, err)
	d, err = l.CheckCapacity(ctx, orgID, monday, 8*60, 2)
	require.NoError(t, err)
	assert.True(t, d.Admit)
	assert.Equal(t, SourceWeekly, d.Source)

	d, err = l.CheckCapacity(ctx, orgID, monday, 12*60, 2)
	require.NoError(t, err)
	assert.False(t, d.Admit, "end of window is exclusive")

	slot := &models.Slot{OrganizationID: orgID, Date: monday, StartTime: 19 * 60, EndTime: 21 * 60, MaxGuests: 2}
	require.NoError(t, l.CreateSlot(ctx, slot))
	d, err = l.CheckCapacity(ctx, orgID, monday, 20*60, 2)
	require.NoError(t, err)
	assert.True(t, d.Admit, "a slot admits even outside the weekly window")
	assert.Equal(t, SourceSlot, d.Source)

	d, err = l.CheckCapacity(ctx, orgID, monday, 20*60, 3)
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, apperr.KindCapacityExceeded.String(), d.Code)
}

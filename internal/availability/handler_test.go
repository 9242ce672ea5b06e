package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/middleware"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = validation.Register()
}

type memStore struct {
	mu     sync.Mutex
	weekly map[uuid.UUID][]models.DayHours
	slots  map[uuid.UUID]*models.Slot
	booked map[uuid.UUID]int
	hours  map[uuid.UUID][2]models.Clock
}

func newMemStore() *memStore {
	return &memStore{
		weekly: make(map[uuid.UUID][]models.DayHours),
		slots:  make(map[uuid.UUID]*models.Slot),
		booked: make(map[uuid.UUID]int),
		hours:  make(map[uuid.UUID][2]models.Clock),
	}
}

func (s *memStore) WeeklyHours(_ context.Context, orgID uuid.UUID) ([]models.DayHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DayHours(nil), s.weekly[orgID]...), nil
}

func (s *memStore) ReplaceWeeklyHours(_ context.Context, orgID uuid.UUID, hours []models.DayHours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weekly[orgID] = append([]models.DayHours(nil), hours...)
	return nil
}

func (s *memStore) ListSlots(_ context.Context, orgID uuid.UUID, from, to *models.Date) ([]models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Slot
	for _, sl := range s.slots {
		if sl.OrganizationID != orgID {
			continue
		}
		if from != nil && sl.Date.Before(from.Time) || to != nil && sl.Date.After(to.Time) {
			continue
		}
		out = append(out, *sl)
	}
	return out, nil
}

func (s *memStore) CreateSlot(_ context.Context, slot *models.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		if sl.OrganizationID == slot.OrganizationID && sl.Overlaps(*slot) {
			return apperr.Conflict("slot overlaps an existing slot")
		}
	}
	slot.ID = uuid.New()
	cp := *slot
	s.slots[slot.ID] = &cp
	return nil
}

func (s *memStore) UpdateSlot(_ context.Context, orgID, id uuid.UUID, patch SlotPatch) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok || sl.OrganizationID != orgID {
		return nil, apperr.NotFound("slot not found")
	}
	if patch.MaxGuests != nil {
		sl.MaxGuests = *patch.MaxGuests
	}
	if patch.Blocked != nil {
		sl.Blocked = *patch.Blocked
	}
	cp := *sl
	return &cp, nil
}

func (s *memStore) DeleteSlot(_ context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok || sl.OrganizationID != orgID {
		return apperr.NotFound("slot not found")
	}
	delete(s.slots, id)
	return nil
}

func (s *memStore) Snapshot(_ context.Context, orgID uuid.UUID, date models.Date, at models.Clock) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Date: date}
	for _, sl := range s.slots {
		if sl.OrganizationID == orgID && sl.Date.Equal(date.Time) && sl.Contains(at) {
			cp := *sl
			snap.Slot = &cp
			snap.Booked = s.booked[sl.ID]
			return snap, nil
		}
	}
	for _, h := range s.weekly[orgID] {
		if h.DayOfWeek == date.Weekday() {
			h := h
			snap.Weekly = &h
			return snap, nil
		}
	}
	hours, ok := s.hours[orgID]
	if !ok {
		hours = [2]models.Clock{models.DefaultOpenTime, models.DefaultCloseTime}
	}
	snap.OpenTime, snap.CloseTime = hours[0], hours[1]
	return snap, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Fields  []string        `json:"fields"`
}

func newRouter(h *Handler, orgID uuid.UUID, apiOrg *models.Organization) *gin.Engine {
	return newRouterAs(h, auth.Principal{UserID: uuid.New(), Role: models.RoleAdmin, Status: models.StatusVerified, OrganizationID: &orgID}, apiOrg)
}

func newRouterAs(h *Handler, p auth.Principal, apiOrg *models.Organization) *gin.Engine {
	r := gin.New()
	session := func(c *gin.Context) { auth.SetPrincipal(c, p) }
	apiKey := func(c *gin.Context) {
		if apiOrg != nil {
			c.Set(middleware.ContextOrganization, apiOrg)
		}
	}
	h.RegisterRoutes(r, session, apiKey)
	return r
}

func call(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestHandler_WeeklyTemplate(t *testing.T) {
	orgID := uuid.New()
	r := newRouter(NewHandler(NewLedger(newMemStore(), nil)), orgID, nil)

	status, _ := call(t, r, http.MethodPost, "/availability", `[{"dayOfWeek":"Sunday","startTime":"12:00","endTime":"16:00"},{"dayOfWeek":"Monday","startTime":"09:00","endTime":"17:00"}]`)
	require.Equal(t, http.StatusOK, status)

	status, env := call(t, r, http.MethodGet, "/availability", "")
	require.Equal(t, http.StatusOK, status)
	var days []DayEntry
	require.NoError(t, json.Unmarshal(env.Data, &days))
	require.Len(t, days, 2)
	assert.Equal(t, "Monday", days[0].Day)
	assert.Equal(t, "Sunday", days[1].Day)

	status, _ = call(t, r, http.MethodPut, "/availability", `{"Friday":{"startTime":"18:00","endTime":"23:30"}}`)
	require.Equal(t, http.StatusOK, status)
	_, env = call(t, r, http.MethodGet, "/availability", "")
	require.NoError(t, json.Unmarshal(env.Data, &days))
	require.Len(t, days, 1)
	assert.Equal(t, "Friday", days[0].Day)

	status, env = call(t, r, http.MethodPut, "/availability", `{"Friday":{"startTime":"23:00","endTime":"18:00"}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Code)
}

func TestHandler_SlotsAndCheck(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	store := newMemStore()
	ledger := NewLedger(store, nil)
	rA := newRouter(NewHandler(ledger), orgA, nil)
	rB := newRouter(NewHandler(ledger), orgB, nil)

	status, env := call(t, rA, http.MethodPost, "/availability/slots", `{"date":"2024-12-23","startTime":"19:00","endTime":"21:00","maxGuests":4}`)
	require.Equal(t, http.StatusCreated, status)
	var slot models.Slot
	require.NoError(t, json.Unmarshal(env.Data, &slot))
	assert.Equal(t, orgA, slot.OrganizationID)

	status, _ = call(t, rA, http.MethodPost, "/availability/slots", `{"date":"2024-12-23","startTime":"20:00","endTime":"22:00","maxGuests":4}`)
	assert.Equal(t, http.StatusConflict, status)

	status, env = call(t, rA, http.MethodPost, "/availability/slots", `{"date":"23/12/2024","startTime":"7pm","endTime":"21:00","maxGuests":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.ElementsMatch(t, []string{"date", "startTime", "maxGuests"}, env.Fields)

	store.booked[slot.ID] = 1
	status, env = call(t, rA, http.MethodGet, "/availability/check?date=2024-12-23&time=19:30&guests=3", "")
	require.Equal(t, http.StatusOK, status)
	var d Decision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.True(t, d.Admit)
	assert.Equal(t, 3, *d.Remaining)

	_, env = call(t, rA, http.MethodGet, "/availability/check?date=2024-12-23&time=19:30&guests=4", "")
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.False(t, d.Admit)
	assert.Equal(t, "capacity_exceeded", d.Code)

	status, env = call(t, rA, http.MethodGet, "/availability/check?date=2024-12-23", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"time", "guests"}, env.Fields)

	// Organization B cannot see or touch A's slot.
	_, env = call(t, rB, http.MethodGet, "/availability/slots", "")
	assert.JSONEq(t, `[]`, string(env.Data))
	status, _ = call(t, rB, http.MethodPut, "/availability/slots/"+slot.ID.String(), `{"blocked":true}`)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = call(t, rB, http.MethodDelete, "/availability/slots/"+slot.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, rA, http.MethodPut, "/availability/slots/"+slot.ID.String(), `{"blocked":true}`)
	require.Equal(t, http.StatusOK, status)
	_, env = call(t, rA, http.MethodGet, "/availability/check?date=2024-12-23&time=19:30&guests=1", "")
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.False(t, d.Admit)
	assert.Equal(t, "outside_hours", d.Code)

	status, _ = call(t, rA, http.MethodDelete, "/availability/slots/"+slot.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestHandler_PublicCheck(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), Active: true}
	h := NewHandler(NewLedger(newMemStore(), nil))

	status, env := call(t, newRouter(h, uuid.New(), org), http.MethodGet, "/availability/public/check?date=2024-12-23&time=20:00&guests=2", "")
	require.Equal(t, http.StatusOK, status)
	var d Decision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.True(t, d.Admit)
	assert.Equal(t, SourceDefault, d.Source)

	status, env = call(t, newRouter(h, uuid.New(), nil), http.MethodGet, "/availability/public/check?date=2024-12-23&time=20:00&guests=2", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperr.CodeInvalidAPIKey, env.Code)
}

func TestHandler_ScheduleIsAdminOnly(t *testing.T) {
	orgID := uuid.New()
	member := auth.Principal{UserID: uuid.New(), Role: models.RoleUser, Status: models.StatusVerified, OrganizationID: &orgID}
	r := newRouterAs(NewHandler(NewLedger(newMemStore(), nil)), member, nil)

	for _, path := range []string{"/availability", "/availability/slots"} {
		status, env := call(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusForbidden, status, path)
		assert.Equal(t, "forbidden", env.Code, path)
	}
	status, _ := call(t, r, http.MethodPost, "/availability/slots", `{"date":"2024-12-23","startTime":"19:00","endTime":"21:00","maxGuests":4}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, r, http.MethodGet, "/availability/check?date=2024-12-23&time=19:30&guests=2", "")
	assert.Equal(t, http.StatusOK, status, "members may preview capacity")
}

func TestHandler_WeeklyTemplateBodies(t *testing.T) {
	orgID := uuid.New()
	store := newMemStore()
	r := newRouter(NewHandler(NewLedger(store, nil)), orgID, nil)

	status, _ := call(t, r, http.MethodPut, "/availability", `{"availabilityData":{"Tuesday":{"startTime":"10:00","endTime":"14:00"}}}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, store.weekly[orgID], 1)

	for _, body := range []string{`[]`, `{}`, `{"availabilityData":[]}`} {
		status, env := call(t, r, http.MethodPut, "/availability", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, "validation_error", env.Code, body)
	}
	assert.Len(t, store.weekly[orgID], 1, "rejected bodies leave the template alone")

	huge := `[{"dayOfWeek":1,"startTime":"09:00","endTime":"17:00","note":"` + strings.Repeat("x", maxDefinitionBytes) + `"}]`
	status, env := call(t, r, http.MethodPost, "/availability", huge)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Code)
}

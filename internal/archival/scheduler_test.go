package archival

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tablehost/backend/internal/models"
)

// memStore applies the same predicate as the SQL sweep.
type memStore struct {
	mu   sync.Mutex
	rows []*models.Reservation
}

func (s *memStore) add(orgID uuid.UUID, date string, at models.Clock, status models.ReservationStatus) *models.Reservation {
	d, _ := models.ParseDate(date)
	r := &models.Reservation{ID: uuid.New(), OrganizationID: orgID, Date: d, Time: at, Guests: 2, Status: status}
	s.rows = append(s.rows, r)
	return r
}

func (s *memStore) ArchiveStale(_ context.Context, cutoff time.Time) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.rows {
		if r.Archived || r.Status == models.ReservationCancelled || !r.StartsAt().Before(cutoff) {
			continue
		}
		r.Archived = true
		out = append(out, *r)
	}
	return out, nil
}

type event struct {
	orgID   uuid.UUID
	name    string
	payload BatchEvent
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) PublishToOrganization(orgID uuid.UUID, name string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, _ := payload.(BatchEvent)
	n.events = append(n.events, event{orgID: orgID, name: name, payload: b})
}

func at(s string) func() time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return func() time.Time { return t }
}

func TestSweep_ArchivesPastReservationsKeepingStatus(t *testing.T) {
	store := &memStore{}
	notifier := &recordingNotifier{}
	orgA, orgB := uuid.New(), uuid.New()
	stale := store.add(orgA, "2024-12-24", 19*60, models.ReservationConfirmed)
	cancelled := store.add(orgA, "2023-01-01", 12*60, models.ReservationCancelled)
	recent := store.add(orgA, "2024-12-25", 1*60, models.ReservationPending)
	otherTenant := store.add(orgB, "2024-12-20", 12*60, models.ReservationPending)

	s := NewScheduler(store, notifier, nil, Config{}, nil)
	s.now = at("2024-12-26T00:00:00Z")

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Archived)
	assert.Equal(t, 2, res.Organizations)
	assert.Equal(t, time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), res.Cutoff)

	assert.True(t, stale.Archived)
	assert.Equal(t, models.ReservationConfirmed, stale.Status)
	assert.False(t, cancelled.Archived, "cancelled reservations are never swept")
	assert.False(t, recent.Archived, "less than 24h past")
	assert.True(t, otherTenant.Archived)

	require.Len(t, notifier.events, 2)
	for _, e := range notifier.events {
		assert.Equal(t, EventArchived, e.name)
		assert.Equal(t, e.orgID, e.payload.OrganizationID)
		assert.Equal(t, 1, e.payload.Count)
		for _, r := range e.payload.Reservations {
			assert.Equal(t, e.orgID, r.OrganizationID, "batches never mix tenants")
		}
	}

	res, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Archived, "second run finds nothing")
	assert.Len(t, notifier.events, 2)
}

func TestSweep_BatchesAreOrderedByStart(t *testing.T) {
	store := &memStore{}
	notifier := &recordingNotifier{}
	orgID := uuid.New()
	late := store.add(orgID, "2024-12-20", 20*60, models.ReservationConfirmed)
	early := store.add(orgID, "2024-12-18", 12*60, models.ReservationPending)
	sameDay := store.add(orgID, "2024-12-20", 18*60, models.ReservationPending)

	s := NewScheduler(store, notifier, nil, Config{}, nil)
	s.now = at("2024-12-26T00:00:00Z")
	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 18, 12, 0, 0, 0, time.UTC), res.Oldest)

	require.Len(t, notifier.events, 1)
	var ids []uuid.UUID
	for _, r := range notifier.events[0].payload.Reservations {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uuid.UUID{early.ID, sameDay.ID, late.ID}, ids)

	res, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Oldest.IsZero())
}

type recordingUploader struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (u *recordingUploader) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	u.bodies = append(u.bodies, body)
	return "https://bucket/" + key, nil
}

func TestSweep_ExportsJSONLinesPerOrganization(t *testing.T) {
	store := &memStore{}
	orgID := uuid.New()
	store.add(orgID, "2024-12-20", 12*60, models.ReservationPending)
	store.add(orgID, "2024-12-21", 12*60, models.ReservationConfirmed)
	uploader := &recordingUploader{}

	s := NewScheduler(store, nil, NewS3Exporter(uploader, nil), Config{}, nil)
	s.now = at("2024-12-26T00:00:00Z")
	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	require.Len(t, uploader.keys, 1)
	assert.Equal(t, "archive/"+orgID.String()+"/20241226T000000Z.jsonl", uploader.keys[0])
	sc := bufio.NewScanner(bytes.NewReader(uploader.bodies[0]))
	lines := 0
	for sc.Scan() {
		var r models.Reservation
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		assert.True(t, r.Archived)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestSweep_ExportFailureDoesNotFailSweep(t *testing.T) {
	store := &memStore{}
	store.add(uuid.New(), "2024-12-20", 12*60, models.ReservationPending)
	core, logs := observer.New(zap.ErrorLevel)

	s := NewScheduler(store, nil, NewS3Exporter(&recordingUploader{err: errors.New("s3 down")}, nil), Config{}, zap.New(core))
	s.now = at("2024-12-26T00:00:00Z")
	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	assert.Equal(t, 1, logs.FilterMessage("archive export failed").Len())
}

type flakyStore struct {
	calls atomic.Int32
}

func (s *flakyStore) ArchiveStale(context.Context, time.Time) ([]models.Reservation, error) {
	switch s.calls.Add(1) {
	case 1:
		return nil, errors.New("connection reset")
	case 2:
		panic("boom")
	}
	return nil, nil
}

func TestRun_SurvivesFailedSweeps(t *testing.T) {
	store := &flakyStore{}
	core, logs := observer.New(zap.InfoLevel)
	s := NewScheduler(store, nil, nil, Config{Interval: 5 * time.Millisecond, RunOnStart: true}, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.GreaterOrEqual(t, logs.FilterMessage("archival sweep failed").Len(), 1)
	assert.GreaterOrEqual(t, logs.FilterMessage("archival sweep panicked").Len(), 1)
	assert.GreaterOrEqual(t, logs.FilterMessage("archival sweep finished").Len(), 1)
}

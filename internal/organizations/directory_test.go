package organizations

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

type memStore struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*models.Organization
	err  error
}

func newMemStore(orgs ...*models.Organization) *memStore {
	s := &memStore{orgs: make(map[uuid.UUID]*models.Organization)}
	for _, o := range orgs {
		s.orgs[o.ID] = o
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) UpdateHours(_ context.Context, id uuid.UUID, opens, closes models.Clock) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	o.OpenTime, o.CloseTime = opens, closes
	cp := *o
	return &cp, nil
}

func (s *memStore) UpdateAPIKey(_ context.Context, id uuid.UUID, key string) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	o.APIKey = key
	cp := *o
	return &cp, nil
}

func testOrg(active bool) *models.Organization {
	return &models.Organization{
		ID:        uuid.New(),
		Name:      "Blue Door",
		APIKey:    "key-" + uuid.NewString(),
		OpenTime:  models.DefaultOpenTime,
		CloseTime: models.DefaultCloseTime,
		Active:    active,
	}
}

func TestDirectory_ValidateAPIKey(t *testing.T) {
	active := testOrg(true)
	inactive := testOrg(false)
	dir := NewDirectory(newMemStore(active, inactive), nil)

	org, err := dir.ValidateAPIKey(context.Background(), active.ID.String(), active.APIKey)
	require.NoError(t, err)
	assert.Equal(t, active.ID, org.ID)

	tests := []struct {
		name       string
		orgID, key string
	}{
		{"wrong key", active.ID.String(), "nope"},
		{"unknown organization", uuid.NewString(), active.APIKey},
		{"inactive organization", inactive.ID.String(), inactive.APIKey},
		{"malformed id", "not-a-uuid", active.APIKey},
		{"empty key", active.ID.String(), ""},
		{"empty id", "", active.APIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.ValidateAPIKey(context.Background(), tt.orgID, tt.key)
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.KindForbidden, appErr.Kind)
			assert.Equal(t, apperr.CodeInvalidAPIKey, appErr.Code)
		})
	}
}

func TestDirectory_ValidateAPIKeyStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	_, err := NewDirectory(store, nil).ValidateAPIKey(context.Background(), uuid.NewString(), "k")
	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.KindForbidden))
}

func TestDirectory_UpdateHours(t *testing.T) {
	org := testOrg(true)
	dir := NewDirectory(newMemStore(org), nil)

	updated, err := dir.UpdateHours(context.Background(), org.ID, "10:00", "22:30")
	require.NoError(t, err)
	assert.Equal(t, models.Clock(600), updated.OpenTime)
	assert.Equal(t, models.Clock(22*60+30), updated.CloseTime)

	for _, tc := range [][2]string{{"22:00", "10:00"}, {"10:00", "10:00"}, {"25:00", "10:00"}, {"10:00", "10am"}} {
		_, err := dir.UpdateHours(context.Background(), org.ID, tc[0], tc[1])
		assert.True(t, apperr.Is(err, apperr.KindValidation), tc)
	}

	_, err = dir.UpdateHours(context.Background(), uuid.New(), "10:00", "11:00")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDirectory_RotateAPIKey(t *testing.T) {
	org := testOrg(true)
	oldKey := org.APIKey
	dir := NewDirectory(newMemStore(org), nil)

	rotated, err := dir.RotateAPIKey(context.Background(), org.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, rotated.APIKey)

	_, err = dir.ValidateAPIKey(context.Background(), org.ID.String(), oldKey)
	assert.ErrorIs(t, err, apperr.InvalidAPIKey())
	_, err = dir.ValidateAPIKey(context.Background(), org.ID.String(), rotated.APIKey)
	assert.NoError(t, err)
}

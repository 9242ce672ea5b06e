// Package archival periodically archives reservations whose time has passed.
package archival

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/models"
)

// EventArchived is published once per organization and sweep.
const EventArchived = "reservations:archived"

// DefaultAge is how far past its start a reservation must be before it is archived.
const DefaultAge = 24 * time.Hour

// Store archives stale rows. ArchiveStale must skip cancelled and already archived reservations.
type Store interface {
	ArchiveStale(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)
}

// Notifier fans events out to an organization's subscribers.
type Notifier interface {
	PublishToOrganization(orgID uuid.UUID, event string, payload interface{})
}

// Exporter copies archived rows somewhere durable.
type Exporter interface {
	Export(ctx context.Context, orgID uuid.UUID, sweptAt time.Time, rows []models.Reservation) error
}

// Config controls the sweep cadence.
type Config struct {
	Interval   time.Duration
	Age        time.Duration
	RunOnStart bool
}

// BatchEvent is the payload of EventArchived.
type BatchEvent struct {
	OrganizationID uuid.UUID            `json:"organizationId"`
	Count          int                  `json:"count"`
	Reservations   []models.Reservation `json:"reservations"`
	SweptAt        time.Time            `json:"sweptAt"`
}

// Result summarizes one sweep. Oldest is the earliest start among archived rows, zero when none.
type Result struct {
	Archived      int
	Organizations int
	Cutoff        time.Time
	Oldest        time.Time
}

// Scheduler runs the archival sweep on an interval.
type Scheduler struct {
	store    Store
	notifier Notifier
	exporter Exporter
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler. notifier and exporter may be nil.
func NewScheduler(store Store, notifier Notifier, exporter Exporter, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Age <= 0 {
		cfg.Age = DefaultAge
	}
	return &Scheduler{store: store, notifier: notifier, exporter: exporter, cfg: cfg, logger: logger, now: time.Now}
}

// Sweep archives every non-cancelled reservation that started more than Age ago (UTC).
// Each organization's batch is ordered by (date, time). Running it again right away archives nothing.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	sweptAt := s.now().UTC()
	res := Result{Cutoff: sweptAt.Add(-s.cfg.Age)}
	rows, err := s.store.ArchiveStale(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("archive stale reservations: %w", err)
	}
	res.Archived = len(rows)

	byOrg := make(map[uuid.UUID][]models.Reservation)
	var order []uuid.UUID
	for _, r := range rows {
		if start := r.StartsAt(); res.Oldest.IsZero() || start.Before(res.Oldest) {
			res.Oldest = start
		}
		if _, seen := byOrg[r.OrganizationID]; !seen {
			order = append(order, r.OrganizationID)
		}
		byOrg[r.OrganizationID] = append(byOrg[r.OrganizationID], r)
	}
	res.Organizations = len(order)

	for _, orgID := range order {
		batch := byOrg[orgID]
		sort.SliceStable(batch, func(i, j int) bool { return batch[i].Before(batch[j]) })
		if s.exporter != nil {
			if err := s.exporter.Export(ctx, orgID, sweptAt, batch); err != nil {
				s.logger.Error("archive export failed", zap.String("organization_id", orgID.String()), zap.Int("count", len(batch)), zap.Error(err))
			}
		}
		if s.notifier != nil {
			s.notifier.PublishToOrganization(orgID, EventArchived, BatchEvent{
				OrganizationID: orgID,
				Count:          len(batch),
				Reservations:   batch,
				SweptAt:        sweptAt,
			})
		}
	}
	return res, nil
}

// Run sweeps every Interval until ctx is cancelled. A failed or panicking sweep is logged and
// the next tick tries again.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("archival scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Duration("age", s.cfg.Age))
	if s.cfg.RunOnStart {
		s.runOnce(ctx)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("archival scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("archival sweep panicked", zap.Any("panic", p))
		}
	}()
	start := time.Now()
	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("archival sweep failed", zap.Time("cutoff", res.Cutoff), zap.Error(err))
		return
	}
	s.logger.Info("archival sweep finished",
		zap.Int("archived", res.Archived),
		zap.Int("organizations", res.Organizations),
		zap.Time("cutoff", res.Cutoff),
		zap.Time("oldest", res.Oldest),
		zap.Duration("took", time.Since(start)))
}

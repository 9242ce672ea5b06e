// Package reservations runs the reservation lifecycle: capacity-checked creation, status changes
// and archival, each announced to the organization's realtime channel after it is stored.
package reservations

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/availability"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/queue"
)

// Events published to an organization's channel.
const (
	EventCreated  = "reservation:created"
	EventUpdated  = "reservation:updated"
	EventArchived = "reservation:archived"
)

// Store is the persistence the engine needs. Reserve must evaluate admit and insert atomically.
type Store interface {
	Reserve(ctx context.Context, r *models.Reservation, admit func(availability.Snapshot) error) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, from, to models.ReservationStatus) (*models.Reservation, error)
	Archive(ctx context.Context, orgID, id uuid.UUID) (*models.Reservation, bool, error)
	List(ctx context.Context, orgID uuid.UUID, archived bool) ([]models.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error)
}

// Notifier fans events out to an organization's subscribers.
type Notifier interface {
	PublishToOrganization(orgID uuid.UUID, event string, payload interface{})
}

// TenantValidator resolves the organization behind an id and API key pair.
type TenantValidator interface {
	ValidateAPIKey(ctx context.Context, orgID, apiKey string) (*models.Organization, error)
}

// UserLookup finds the account that made a reservation, for notification emails.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EmailQueue accepts notification email jobs.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, job queue.EmailJob) error
}

// Engine governs reservation creation and lifecycle.
type Engine struct {
	store    Store
	tenants  TenantValidator
	notifier Notifier
	users    UserLookup
	emails   EmailQueue
	logger   *zap.Logger
}

// NewEngine creates a reservation engine. users and emails may be nil to disable notification emails.
func NewEngine(store Store, tenants TenantValidator, notifier Notifier, users UserLookup, emails EmailQueue, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, tenants: tenants, notifier: notifier, users: users, emails: emails, logger: logger}
}

// CreateInput is a booking request. Date and Time are "YYYY-MM-DD" and "HH:MM".
// WalkIn records an admin booking on behalf of a guest without an account.
type CreateInput struct {
	Date        string
	Time        string
	Guests      *int
	ContactName string
	PhoneNumber string
	Notes       string
	WalkIn      bool
}

// Create books a reservation in the principal's organization.
func (e *Engine) Create(ctx context.Context, p auth.Principal, in CreateInput) (*models.Reservation, error) {
	orgID, err := p.Organization()
	if err != nil {
		return nil, err
	}
	userID := &p.UserID
	if in.WalkIn {
		if err := auth.RequireRole(p, models.RoleAdmin); err != nil {
			return nil, err
		}
		userID = nil
	}
	r, err := e.create(ctx, orgID, userID, in)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		e.queueEmail(ctx, queue.EmailReservationCreated, p.Email, "", r)
	}
	return r, nil
}

// CreatePublic books a reservation for a caller holding the organization's API key.
// Every id/key failure is reported as InvalidAPIKey.
func (e *Engine) CreatePublic(ctx context.Context, orgID, apiKey string, in CreateInput) (*models.Reservation, error) {
	org, err := e.tenants.ValidateAPIKey(ctx, orgID, apiKey)
	if err != nil {
		return nil, err
	}
	return e.create(ctx, org.ID, nil, in)
}

func (e *Engine) create(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, in CreateInput) (*models.Reservation, error) {
	r, err := buildReservation(orgID, userID, in)
	if err != nil {
		return nil, err
	}
	err = e.store.Reserve(ctx, r, func(s availability.Snapshot) error {
		return availability.Evaluate(s, r.Time, r.Guests)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("reservation created",
		zap.String("organization_id", orgID.String()),
		zap.String("reservation_id", r.ID.String()),
		zap.Stringer("date", r.Date),
		zap.Stringer("time", r.Time),
		zap.Int("guests", r.Guests))
	e.notifier.PublishToOrganization(orgID, EventCreated, r)
	return r, nil
}

func buildReservation(orgID uuid.UUID, userID *uuid.UUID, in CreateInput) (*models.Reservation, error) {
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.ContactName = strings.TrimSpace(in.ContactName)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	var missing []string
	if in.Date == "" {
		missing = append(missing, "date")
	}
	if in.Time == "" {
		missing = append(missing, "time")
	}
	if in.Guests == nil {
		missing = append(missing, "guests")
	}
	if in.ContactName == "" {
		missing = append(missing, "contactName")
	}
	if in.PhoneNumber == "" {
		missing = append(missing, "phoneNumber")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}

	date, err := models.ParseDate(in.Date)
	if err != nil {
		return nil, apperr.Validation(err.Error(), "date")
	}
	at, err := models.ParseClock(in.Time)
	if err != nil {
		return nil, apperr.Validation(err.Error(), "time")
	}
	if *in.Guests < 1 || *in.Guests > models.MaxGuests {
		return nil, apperr.Validation(fmt.Sprintf("guests must be between 1 and %d", models.MaxGuests), "guests")
	}
	if utf8.RuneCountInString(in.ContactName) > models.MaxContactNameLen {
		return nil, apperr.Validation(fmt.Sprintf("contactName must be at most %d characters", models.MaxContactNameLen), "contactName")
	}
	if !validation.ValidPhone(in.PhoneNumber) {
		return nil, apperr.Validation("phoneNumber must be 10 to 15 digits", "phoneNumber")
	}
	return &models.Reservation{
		OrganizationID: orgID,
		UserID:         userID,
		ContactName:    in.ContactName,
		PhoneNumber:    in.PhoneNumber,
		Date:           date,
		Time:           at,
		Guests:         *in.Guests,
		Notes:          strings.TrimSpace(in.Notes),
		Status:         models.ReservationPending,
	}, nil
}

// UpdateStatus changes a reservation's status. Admin only; reservations outside the admin's
// organization are NotFound. Same-status updates succeed without an event.
func (e *Engine) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, status string) (*models.Reservation, error) {
	orgID, err := adminOrganization(p)
	if err != nil {
		return nil, err
	}
	next, err := models.ParseReservationStatus(strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return nil, apperr.Validation(err.Error(), "status")
	}
	cur, err := e.store.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if cur.Archived {
		return nil, apperr.Conflict("archived reservations cannot change status")
	}
	if !cur.Status.CanTransition(next) {
		return nil, apperr.Conflict("cannot change status from " + string(cur.Status) + " to " + string(next))
	}
	if cur.Status == next {
		return cur, nil
	}
	r, err := e.store.UpdateStatus(ctx, orgID, id, cur.Status, next)
	if err != nil {
		return nil, err
	}
	e.logger.Info("reservation status changed",
		zap.String("organization_id", orgID.String()),
		zap.String("reservation_id", r.ID.String()),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(next)),
		zap.Bool("releases_capacity", cur.Status.HoldsCapacity() && !next.HoldsCapacity()))
	e.notifier.PublishToOrganization(orgID, EventUpdated, r)
	e.notifyOwner(ctx, r)
	return r, nil
}

// Archive archives a reservation. Admin only; archiving twice is a no-op success.
func (e *Engine) Archive(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Reservation, error) {
	orgID, err := adminOrganization(p)
	if err != nil {
		return nil, err
	}
	r, changed, err := e.store.Archive(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if changed {
		e.logger.Info("reservation archived", zap.String("organization_id", orgID.String()), zap.String("reservation_id", r.ID.String()))
		e.notifier.PublishToOrganization(orgID, EventArchived, r)
	}
	return r, nil
}

// ListActive returns the organization's unarchived reservations ordered by (date, time).
func (e *Engine) ListActive(ctx context.Context, p auth.Principal) ([]models.Reservation, error) {
	return e.list(ctx, p, false)
}

// ListArchived returns the organization's archived reservations ordered by (date, time).
func (e *Engine) ListArchived(ctx context.Context, p auth.Principal) ([]models.Reservation, error) {
	return e.list(ctx, p, true)
}

func (e *Engine) list(ctx context.Context, p auth.Principal, archived bool) ([]models.Reservation, error) {
	orgID, err := adminOrganization(p)
	if err != nil {
		return nil, err
	}
	return e.store.List(ctx, orgID, archived)
}

// ListForUser returns the principal's own reservations.
func (e *Engine) ListForUser(ctx context.Context, p auth.Principal) ([]models.Reservation, error) {
	return e.store.ListByUser(ctx, p.UserID)
}

func adminOrganization(p auth.Principal) (uuid.UUID, error) {
	if err := auth.RequireRole(p, models.RoleAdmin); err != nil {
		return uuid.Nil, err
	}
	return p.Organization()
}

func (e *Engine) notifyOwner(ctx context.Context, r *models.Reservation) {
	if r.UserID == nil || e.users == nil || e.emails == nil {
		return
	}
	u, err := e.users.GetByID(ctx, *r.UserID)
	if err != nil {
		e.logger.Warn("reservation owner lookup failed", zap.String("reservation_id", r.ID.String()), zap.Error(err))
		return
	}
	e.queueEmail(ctx, queue.EmailReservationUpdated, u.Email, u.FullName, r)
}

func (e *Engine) queueEmail(ctx context.Context, kind queue.EmailKind, to, name string, r *models.Reservation) {
	if e.emails == nil || to == "" {
		return
	}
	job := queue.EmailJob{
		Kind:           kind,
		To:             to,
		Name:           name,
		OrganizationID: r.OrganizationID.String(),
		ReservationID:  r.ID.String(),
		Data: map[string]string{
			"date":   r.Date.String(),
			"time":   r.Time.String(),
			"guests": strconv.Itoa(r.Guests),
			"status": string(r.Status),
		},
	}
	if r.UserID != nil {
		job.UserID = r.UserID.String()
	}
	if err := e.emails.EnqueueEmail(ctx, job); err != nil {
		e.logger.Warn("enqueue reservation email failed", zap.String("reservation_id", r.ID.String()), zap.Error(err))
	}
}

package reservations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/response"
)

// CreateRequest is the body for POST /reservation/reservations. Required fields are checked by the
// engine so a missing-field error can list all of them at once.
type CreateRequest struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Guests      *int   `json:"guests"`
	ContactName string `json:"contactName"`
	PhoneNumber string `json:"phoneNumber"`
	Notes       string `json:"notes"`
	WalkIn      bool   `json:"walkIn"`
}

func (r CreateRequest) input() CreateInput {
	return CreateInput{
		Date:        r.Date,
		Time:        r.Time,
		Guests:      r.Guests,
		ContactName: r.ContactName,
		PhoneNumber: r.PhoneNumber,
		Notes:       r.Notes,
		WalkIn:      r.WalkIn,
	}
}

// PublicCreateRequest is the body for POST /reservation/reservations/public.
type PublicCreateRequest struct {
	OrganizationID string `json:"organizationId"`
	APIKey         string `json:"apiKey"`
	CreateRequest
}

// StatusRequest is the body for PUT /reservation/reservations/:id.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler serves reservation endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler creates a reservation handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		response.Error(c, apperr.Unauthenticated("missing session"))
	}
	return p, ok
}

func reservationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.NotFound("reservation not found"))
		return uuid.Nil, false
	}
	return id, true
}

func respondList(c *gin.Context, list []models.Reservation, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []models.Reservation{}
	}
	response.OK(c, list)
}

// ListActive handles GET /reservation/reservations.
func (h *Handler) ListActive(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.engine.ListActive(c.Request.Context(), p)
	respondList(c, list, err)
}

// ListArchived handles GET /reservation/archived.
func (h *Handler) ListArchived(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.engine.ListArchived(c.Request.Context(), p)
	respondList(c, list, err)
}

// ListForUser handles GET /reservation/reservations/user.
func (h *Handler) ListForUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.engine.ListForUser(c.Request.Context(), p)
	respondList(c, list, err)
}

// Create handles POST /reservation/reservations.
func (h *Handler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	r, err := h.engine.Create(c.Request.Context(), p, req.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

// CreatePublic handles POST /reservation/reservations/public.
func (h *Handler) CreatePublic(c *gin.Context) {
	var req PublicCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	r, err := h.engine.CreatePublic(c.Request.Context(), req.OrganizationID, req.APIKey, req.CreateRequest.input())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

// UpdateStatus handles PUT /reservation/reservations/:id.
func (h *Handler) UpdateStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := reservationID(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	r, err := h.engine.UpdateStatus(c.Request.Context(), p, id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, r)
}

// Archive handles PUT /reservation/reservations/:id/archive.
func (h *Handler) Archive(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := reservationID(c)
	if !ok {
		return
	}
	r, err := h.engine.Archive(c.Request.Context(), p, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, r)
}

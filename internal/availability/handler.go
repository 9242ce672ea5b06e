package availability

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/middleware"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/response"
)

// SlotRequest is the body for POST /availability/slots.
type SlotRequest struct {
	Date      string `json:"date" binding:"required,date"`
	StartTime string `json:"startTime" binding:"required,clock"`
	EndTime   string `json:"endTime" binding:"required,clock"`
	MaxGuests int    `json:"maxGuests" binding:"required,min=1"`
	Blocked   bool   `json:"blocked"`
}

// SlotPatchRequest is the body for PUT /availability/slots/:id.
type SlotPatchRequest struct {
	MaxGuests *int  `json:"maxGuests" binding:"omitempty,min=1"`
	Blocked   *bool `json:"blocked"`
}

// maxDefinitionBytes bounds the weekly template body.
const maxDefinitionBytes = 64 << 10

// Handler serves availability endpoints.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates an availability handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes mounts the availability endpoints. session must set the principal and apiKey must
// resolve the organization for the public check. Reading and editing the schedule is admin only;
// any member of the organization may preview capacity.
func (h *Handler) RegisterRoutes(r gin.IRouter, session, apiKey gin.HandlerFunc) {
	admin := middleware.RequireRole(models.RoleAdmin)
	r.GET("/availability/public/check", apiKey, h.PublicCheck)
	g := r.Group("/availability", session, middleware.RequireOrganization())
	g.GET("/check", h.Check)
	g.GET("", admin, h.Get)
	g.POST("", admin, h.Set)
	g.PUT("", admin, h.Set)
	g.GET("/slots", admin, h.ListSlots)
	g.POST("/slots", admin, h.CreateSlot)
	g.PUT("/slots/:id", admin, h.UpdateSlot)
	g.DELETE("/slots/:id", admin, h.DeleteSlot)
}

func organizationOf(c *gin.Context) (uuid.UUID, error) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return uuid.Nil, apperr.Unauthenticated("missing session")
	}
	return p.Organization()
}

// Get handles GET /availability.
func (h *Handler) Get(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	days, err := h.ledger.GetAvailability(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, days)
}

// Set handles POST and PUT /availability. Both accept the array and the day-keyed object form.
func (h *Handler) Set(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDefinitionBytes))
	if err != nil {
		response.Error(c, apperr.Validation("availability definition is too large or unreadable"))
		return
	}
	hours, err := ParseWeekly(body)
	if err != nil {
		response.Error(c, err)
		return
	}
	days, err := h.ledger.SetAvailability(c.Request.Context(), orgID, hours)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, days)
}

// Check handles GET /availability/check?date=&time=&guests= for the caller's organization.
func (h *Handler) Check(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.check(c, orgID)
}

// PublicCheck handles GET /availability/public/check, authenticated by the API key middleware.
func (h *Handler) PublicCheck(c *gin.Context) {
	org, ok := middleware.OrganizationFrom(c)
	if !ok {
		response.Error(c, apperr.InvalidAPIKey())
		return
	}
	h.check(c, org.ID)
}

func (h *Handler) check(c *gin.Context, orgID uuid.UUID) {
	date, at, guests, err := parseCheckQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	decision, err := h.ledger.CheckCapacity(c.Request.Context(), orgID, date, at, guests)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, decision)
}

func parseCheckQuery(c *gin.Context) (models.Date, models.Clock, int, error) {
	var missing []string
	for _, k := range []string{"date", "time", "guests"} {
		if c.Query(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return models.Date{}, 0, 0, apperr.MissingFields(missing...)
	}
	date, err := models.ParseDate(c.Query("date"))
	if err != nil {
		return models.Date{}, 0, 0, apperr.Validation(err.Error(), "date")
	}
	at, err := models.ParseClock(c.Query("time"))
	if err != nil {
		return models.Date{}, 0, 0, apperr.Validation(err.Error(), "time")
	}
	guests, err := strconv.Atoi(c.Query("guests"))
	if err != nil {
		return models.Date{}, 0, 0, apperr.Validation("guests must be a number", "guests")
	}
	return date, at, guests, nil
}

// ListSlots handles GET /availability/slots?from=&to=.
func (h *Handler) ListSlots(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var from, to *models.Date
	for key, dst := range map[string]**models.Date{"from": &from, "to": &to} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		d, err := models.ParseDate(v)
		if err != nil {
			response.Error(c, apperr.Validation(err.Error(), key))
			return
		}
		*dst = &d
	}
	slots, err := h.ledger.ListSlots(c.Request.Context(), orgID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	if slots == nil {
		slots = []models.Slot{}
	}
	response.OK(c, slots)
}

// CreateSlot handles POST /availability/slots.
func (h *Handler) CreateSlot(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	date, _ := models.ParseDate(req.Date)
	start, _ := models.ParseClock(req.StartTime)
	end, _ := models.ParseClock(req.EndTime)
	slot := &models.Slot{
		OrganizationID: orgID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
		MaxGuests:      req.MaxGuests,
		Blocked:        req.Blocked,
	}
	if err := h.ledger.CreateSlot(c.Request.Context(), slot); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// UpdateSlot handles PUT /availability/slots/:id.
func (h *Handler) UpdateSlot(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.NotFound("slot not found"))
		return
	}
	var req SlotPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	slot, err := h.ledger.UpdateSlot(c.Request.Context(), orgID, id, SlotPatch{MaxGuests: req.MaxGuests, Blocked: req.Blocked})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slot)
}

// DeleteSlot handles DELETE /availability/slots/:id.
func (h *Handler) DeleteSlot(c *gin.Context) {
	orgID, err := organizationOf(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperr.NotFound("slot not found"))
		return
	}
	if err := h.ledger.DeleteSlot(c.Request.Context(), orgID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

package organizations

import (
	"github.com/gin-gonic/gin"

	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/response"
)

// HoursRequest is the body for PUT /organization/hours.
type HoursRequest struct {
	OpenTime  string `json:"openTime" binding:"required,clock"`
	CloseTime string `json:"closeTime" binding:"required,clock"`
}

// Handler serves the caller's own organization. Routes are mounted behind Session and RequireRole(admin).
type Handler struct {
	dir *Directory
}

// NewHandler creates an organizations handler.
func NewHandler(dir *Directory) *Handler {
	return &Handler{dir: dir}
}

// Get handles GET /organization.
func (h *Handler) Get(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	orgID, err := p.Organization()
	if err != nil {
		response.Error(c, err)
		return
	}
	org, err := h.dir.Get(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// UpdateHours handles PUT /organization/hours.
func (h *Handler) UpdateHours(c *gin.Context) {
	var req HoursRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	p, _ := auth.PrincipalFrom(c)
	orgID, err := p.Organization()
	if err != nil {
		response.Error(c, err)
		return
	}
	org, err := h.dir.UpdateHours(c.Request.Context(), orgID, req.OpenTime, req.CloseTime)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org.Public())
}

// RotateAPIKey handles POST /organization/api-key.
func (h *Handler) RotateAPIKey(c *gin.Context) {
	p, _ := auth.PrincipalFrom(c)
	orgID, err := p.Organization()
	if err != nil {
		response.Error(c, err)
		return
	}
	org, err := h.dir.RotateAPIKey(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

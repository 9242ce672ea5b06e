package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablehost/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Fields  []string    `json:"fields,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Status maps an error kind to its HTTP status.
func Status(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindOutsideHours:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindCapacityExceeded, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error writes err using the apperr taxonomy. Internal causes are attached to the gin
// context for the request logger and never sent to the caller.
func Error(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal(err)
	}
	if e.Kind == apperr.KindInternal {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, Body{Success: false, Error: "internal error", Code: e.Code})
		return
	}
	c.JSON(Status(e.Kind), Body{Success: false, Error: e.Message, Code: e.Code, Fields: e.Fields})
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

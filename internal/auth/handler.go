package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/response"
)

// SignupRequest is the body for POST /auth/signup.
type SignupRequest struct {
	OrganizationName string `json:"organizationName" binding:"required,min=3,max=100"`
	Timezone         string `json:"timezone"`
	FullName         string `json:"fullName" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=6"`
	Phone            string `json:"phone" binding:"omitempty,phone"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	OrganizationID string `json:"organizationId" binding:"required"`
	APIKey         string `json:"apiKey" binding:"required"`
	FullName       string `json:"fullName" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=6"`
	Phone          string `json:"phone" binding:"omitempty,phone"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// VerifyRequest is the body for POST /auth/verify.
type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// PublicChannelRequest is the body for POST /realtime/token/public.
type PublicChannelRequest struct {
	OrganizationID string `json:"organizationId" binding:"required"`
	APIKey         string `json:"apiKey" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token        string               `json:"token"`
	User         models.UserPublic    `json:"user"`
	Organization *models.Organization `json:"organization,omitempty"`
}

// ChannelTokenResponse carries a realtime channel-join token.
type ChannelTokenResponse struct {
	Token          string    `json:"token"`
	OrganizationID string    `json:"organizationId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// CookieConfig controls the session cookie set on login.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	svc     *Service
	tenants TenantValidator
	cookie  CookieConfig
	logger  *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service, tenants TenantValidator, cookie CookieConfig, logger *zap.Logger) *Handler {
	if cookie.Name == "" {
		cookie.Name = "session"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, tenants: tenants, cookie: cookie, logger: logger}
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	token, user, org, err := h.svc.Signup(c.Request.Context(), SignupInput{
		OrganizationName: req.OrganizationName,
		Timezone:         req.Timezone,
		FullName:         req.FullName,
		Email:            req.Email,
		Password:         req.Password,
		Phone:            req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("organization signed up", zap.String("organization_id", org.ID.String()), zap.String("user_id", user.ID.String()))
	h.setSessionCookie(c, token)
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic(), Organization: org})
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	token, user, err := h.svc.Register(c.Request.Context(), RegisterInput{
		OrganizationID: req.OrganizationID,
		APIKey:         req.APIKey,
		FullName:       req.FullName,
		Email:          req.Email,
		Password:       req.Password,
		Phone:          req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setSessionCookie(c, token)
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	token, user, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setSessionCookie(c, token)
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Logout handles POST /auth/logout. Tokens are not revoked server-side; the cookie is cleared.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	response.OK(c, gin.H{"message": "logged out"})
}

// Verify handles POST /auth/verify and GET /auth/verify?token=.
func (h *Handler) Verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" && c.Request.Method == http.MethodPost {
		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, validation.BindError(err))
			return
		}
		token = req.Token
	}
	session, user, err := h.svc.Verify(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setSessionCookie(c, session)
	response.OK(c, TokenResponse{Token: session, User: user.ToPublic()})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		response.Error(c, apperr.Unauthenticated("missing session"))
		return
	}
	user, err := h.svc.Me(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user.ToPublic())
}

// ChannelToken handles GET /realtime/token for the caller's own organization.
func (h *Handler) ChannelToken(c *gin.Context) {
	p, ok := PrincipalFrom(c)
	if !ok {
		response.Error(c, apperr.Unauthenticated("missing session"))
		return
	}
	orgID, err := p.Organization()
	if err != nil {
		response.Error(c, err)
		return
	}
	token, expiresAt, err := h.svc.JWT().GenerateChannel(orgID, p.UserID.String())
	if err != nil {
		response.Error(c, apperr.Internal(err))
		return
	}
	response.OK(c, ChannelTokenResponse{Token: token, OrganizationID: orgID.String(), ExpiresAt: expiresAt})
}

// PublicChannelToken handles POST /realtime/token/public, authenticated by organization id and API key.
func (h *Handler) PublicChannelToken(c *gin.Context) {
	var req PublicChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validation.BindError(err))
		return
	}
	org, err := h.tenants.ValidateAPIKey(c.Request.Context(), req.OrganizationID, req.APIKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	token, expiresAt, err := h.svc.JWT().GenerateChannel(org.ID, "public")
	if err != nil {
		response.Error(c, apperr.Internal(err))
		return
	}
	response.OK(c, ChannelTokenResponse{Token: token, OrganizationID: org.ID.String(), ExpiresAt: expiresAt})
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	maxAge := int(h.svc.JWT().Expiration() / time.Second)
	if maxAge == 0 {
		maxAge = int((365 * 24 * time.Hour) / time.Second)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/", "", h.cookie.Secure, true)
}

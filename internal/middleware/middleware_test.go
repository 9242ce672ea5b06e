package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func adminToken(t *testing.T, svc *auth.JWTService, role models.Role) (string, uuid.UUID) {
	t.Helper()
	org := uuid.New()
	token, err := svc.Generate(auth.Principal{
		UserID:         uuid.New(),
		Email:          "admin@example.com",
		Role:           role,
		Status:         models.StatusVerified,
		OrganizationID: &org,
	})
	require.NoError(t, err)
	return token, org
}

func TestSession(t *testing.T) {
	svc := auth.NewJWTService("test-secret", time.Hour, false, 0)
	token, org := adminToken(t, svc, models.RoleAdmin)

	r := gin.New()
	r.GET("/me", Session(svc, "session"), func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, p.OrganizationID.String())
	})

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"lowercase scheme", "bearer " + token, "", http.StatusOK},
		{"cookie", "", token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed header", "Token " + token, "", http.StatusUnauthorized},
		{"bad token", "Bearer abc.def.ghi", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, org.String(), w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService("test-secret", time.Hour, false, 0)
	adminTok, _ := adminToken(t, svc, models.RoleAdmin)
	userTok, _ := adminToken(t, svc, models.RoleUser)

	r := gin.New()
	r.GET("/admin", Session(svc, ""), RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bare", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	for tok, want := range map[string]int{adminTok: http.StatusOK, userTok: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bare", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type stubValidator struct {
	org *models.Organization
	key string
}

func (s stubValidator) ValidateAPIKey(_ context.Context, orgID, apiKey string) (*models.Organization, error) {
	if orgID != s.org.ID.String() || apiKey != s.key {
		return nil, apperr.InvalidAPIKey()
	}
	return s.org, nil
}

func TestAPIKey(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), Active: true}
	r := gin.New()
	r.GET("/public", APIKey(stubValidator{org: org, key: "k"}), func(c *gin.Context) {
		got, ok := OrganizationFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, got.ID.String())
	})

	tests := []struct {
		name       string
		orgID, key string
		wantStatus int
	}{
		{"valid", org.ID.String(), "k", http.StatusOK},
		{"wrong key", org.ID.String(), "x", http.StatusForbidden},
		{"unknown org", uuid.NewString(), "k", http.StatusForbidden},
		{"missing", "", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/public", nil)
			req.Header.Set(HeaderOrganizationID, tt.orgID)
			req.Header.Set(HeaderAPIKey, tt.key)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Contains(t, entries[1].ContextMap()["errors"], assert.AnError.Error())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

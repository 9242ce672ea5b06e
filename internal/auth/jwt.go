package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tablehost/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

const (
	audienceSession = "session"
	audienceChannel = "realtime"
)

// Claims holds session token claims.
type Claims struct {
	UserID         uuid.UUID         `json:"user_id"`
	Email          string            `json:"email"`
	Role           models.Role       `json:"role"`
	Status         models.UserStatus `json:"status"`
	OrganizationID *uuid.UUID        `json:"organization_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated actor described by the claims.
func (c *Claims) Principal() Principal {
	return Principal{
		UserID:         c.UserID,
		Email:          c.Email,
		Role:           c.Role,
		Status:         c.Status,
		OrganizationID: c.OrganizationID,
	}
}

// ChannelClaims authorize one realtime subscription to one organization's channel.
type ChannelClaims struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expiration  time.Duration
	neverExpire bool
	channelTTL  time.Duration
	now         func() time.Time
}

// NewJWTService creates a JWT service. With neverExpire set, session tokens carry no exp claim.
func NewJWTService(secret string, expiration time.Duration, neverExpire bool, channelTTL time.Duration) *JWTService {
	if channelTTL <= 0 {
		channelTTL = 5 * time.Minute
	}
	return &JWTService{
		secret:      []byte(secret),
		expiration:  expiration,
		neverExpire: neverExpire,
		channelTTL:  channelTTL,
		now:         time.Now,
	}
}

// Expiration returns the session lifetime, or zero when tokens never expire.
func (s *JWTService) Expiration() time.Duration {
	if s.neverExpire {
		return 0
	}
	return s.expiration
}

// Generate creates a session token for the principal.
func (s *JWTService) Generate(p Principal) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:         p.UserID,
		Email:          p.Email,
		Role:           p.Role,
		Status:         p.Status,
		OrganizationID: p.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.UserID.String(),
			Audience: jwt.ClaimStrings{audienceSession},
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.New().String(),
		},
	}
	if !s.neverExpire {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiration))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a session token, returning claims or ErrInvalidToken.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audienceSession),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := models.ParseUserStatus(string(claims.Status)); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateChannel creates a short-lived token for joining an organization's realtime channel.
// subject identifies the caller (a user id, or "public" for API-key callers).
func (s *JWTService) GenerateChannel(orgID uuid.UUID, subject string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.channelTTL)
	claims := ChannelClaims{
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audienceChannel},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateChannel checks a channel token and that it was issued for orgID.
func (s *JWTService) ValidateChannel(tokenString string, orgID uuid.UUID) error {
	claims := &ChannelClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audienceChannel),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	if claims.OrganizationID != orgID {
		return ErrInvalidToken
	}
	return nil
}

func (s *JWTService) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return s.secret, nil
}

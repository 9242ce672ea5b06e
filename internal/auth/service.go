package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/queue"
	"github.com/tablehost/backend/pkg/utils"
)

// UserStore is the persistence the identity service needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	CreateWithOrganization(ctx context.Context, org *models.Organization, u *models.User) error
	Verify(ctx context.Context, token string) (*models.User, error)
}

// TenantValidator checks an organization id / API key pair.
type TenantValidator interface {
	ValidateAPIKey(ctx context.Context, orgID, apiKey string) (*models.Organization, error)
}

// PasswordHasher hashes and compares account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(plain, hashed string) bool
}

// EmailQueue accepts outbound email jobs.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, job queue.EmailJob) error
}

// Service authenticates principals and mints session tokens.
type Service struct {
	users   UserStore
	tenants TenantValidator
	jwt     *JWTService
	hasher  PasswordHasher
	emails  EmailQueue
	logger  *zap.Logger
}

// NewService creates the identity service. emails may be nil, in which case no verification mail is queued.
func NewService(users UserStore, tenants TenantValidator, jwt *JWTService, hasher PasswordHasher, emails EmailQueue, logger *zap.Logger) *Service {
	if hasher == nil {
		hasher = utils.Bcrypt{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, tenants: tenants, jwt: jwt, hasher: hasher, emails: emails, logger: logger}
}

// JWT returns the token service backing this identity service.
func (s *Service) JWT() *JWTService { return s.jwt }

// Authenticate checks credentials and returns a session token for a verified user.
// The password is checked before the account status so an unverified account is only
// revealed to a caller who knows its password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, err
	}
	if !s.hasher.Compare(password, u.Password) {
		return "", nil, apperr.InvalidCredentials()
	}
	if !u.Status.CanLogin() {
		return "", nil, apperr.Unverified()
	}
	token, err := s.Issue(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Issue mints a session token reflecting the user's current role, status and organization.
func (s *Service) Issue(u *models.User) (string, error) {
	token, err := s.jwt.Generate(PrincipalFromUser(u))
	if err != nil {
		return "", apperr.Internal(err)
	}
	return token, nil
}

// SignupInput creates an organization together with its first administrator.
type SignupInput struct {
	OrganizationName string
	Timezone         string
	FullName         string
	Email            string
	Password         string
	Phone            string
}

// Signup creates the organization and a pending admin in one transaction.
func (s *Service) Signup(ctx context.Context, in SignupInput) (string, *models.User, *models.Organization, error) {
	name := strings.TrimSpace(in.OrganizationName)
	if len(name) < 3 || len(name) > 100 {
		return "", nil, nil, apperr.Validation("organization name must be 3-100 characters", "organizationName")
	}
	u, err := s.newUser(in.FullName, in.Email, in.Password, in.Phone, models.RolePendingAdmin)
	if err != nil {
		return "", nil, nil, err
	}
	key, err := utils.NewAPIKey()
	if err != nil {
		return "", nil, nil, apperr.Internal(err)
	}
	org := &models.Organization{
		Name:      name,
		APIKey:    key,
		OpenTime:  models.DefaultOpenTime,
		CloseTime: models.DefaultCloseTime,
		Timezone:  in.Timezone,
		Active:    true,
	}
	if err := s.users.CreateWithOrganization(ctx, org, u); err != nil {
		return "", nil, nil, err
	}
	s.queueVerification(ctx, u)
	token, err := s.Issue(u)
	if err != nil {
		return "", nil, nil, err
	}
	return token, u, org, nil
}

// RegisterInput joins an existing organization, authenticated by its API key.
type RegisterInput struct {
	OrganizationID string
	APIKey         string
	FullName       string
	Email          string
	Password       string
	Phone          string
}

// Register creates a pending user in the organization named by the id / API key pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, *models.User, error) {
	org, err := s.tenants.ValidateAPIKey(ctx, in.OrganizationID, in.APIKey)
	if err != nil {
		return "", nil, err
	}
	u, err := s.newUser(in.FullName, in.Email, in.Password, in.Phone, models.RoleUser)
	if err != nil {
		return "", nil, err
	}
	u.OrganizationID = &org.ID
	if err := s.users.Create(ctx, u); err != nil {
		return "", nil, err
	}
	s.queueVerification(ctx, u)
	token, err := s.Issue(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Verify consumes a verification token and returns a fresh session token for the updated account.
func (s *Service) Verify(ctx context.Context, token string) (string, *models.User, error) {
	if strings.TrimSpace(token) == "" {
		return "", nil, apperr.MissingFields("token")
	}
	u, err := s.users.Verify(ctx, token)
	if err != nil {
		return "", nil, err
	}
	session, err := s.Issue(u)
	if err != nil {
		return "", nil, err
	}
	return session, u, nil
}

// Me returns the account behind a principal.
func (s *Service) Me(ctx context.Context, p Principal) (*models.User, error) {
	return s.users.GetByID(ctx, p.UserID)
}

func (s *Service) newUser(fullName, email, password, phone string, role models.Role) (*models.User, error) {
	var missing []string
	if strings.TrimSpace(fullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(email) == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	if !validation.ValidEmail(strings.TrimSpace(email)) {
		return nil, apperr.Validation("invalid email address", "email")
	}
	if len(password) < 6 {
		return nil, apperr.Validation("password must be at least 6 characters", "password")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	verification, err := utils.RandomToken(24)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &models.User{
		Email:             normalizeEmail(email),
		Password:          hash,
		FullName:          strings.TrimSpace(fullName),
		Phone:             phone,
		Role:              role,
		Status:            models.StatusPending,
		VerificationToken: &verification,
	}, nil
}

func (s *Service) queueVerification(ctx context.Context, u *models.User) {
	if s.emails == nil || u.VerificationToken == nil {
		return
	}
	job := queue.EmailJob{
		Kind:   queue.EmailVerification,
		To:     u.Email,
		Name:   u.FullName,
		Token:  *u.VerificationToken,
		UserID: u.ID.String(),
	}
	if err := s.emails.EnqueueEmail(ctx, job); err != nil {
		s.logger.Warn("enqueue verification email failed", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wifiportal/internal/config"
	"wifiportal/internal/ids"
	"wifiportal/internal/models"
	"wifiportal/internal/repository"
	"wifiportal/internal/security"
)

const minPasswordLength = 6

type AuthService struct {
	store  repository.Store
	cfg    *config.AppConfig
	tokens *security.TokenIssuer
	log    zerolog.Logger
	now    func() time.Time
}

// NewAuthService logs and carries on without a JWT secret; logins then fail
// until one is configured.
func NewAuthService(store repository.Store, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	tokens, err := security.NewTokenIssuer(cfg.Security.JWTAccessSecret, cfg.Security.JWTAccessTTL)
	if err != nil {
		log.Warn().Err(err).Msg("access tokens disabled")
	}
	return &AuthService{
		store:  store,
		cfg:    cfg,
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
}

type RegisterInput struct {
	Phone     string
	Password  string
	IPAddress string
	UserAgent string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	User         models.User
	Profile      models.Profile
}

// Email maps a phone number onto the credential identifier used for login.
func (s *AuthService) Email(phone string) string {
	return normalizePhone(phone) + "@" + s.cfg.Identity.EmailDomain
}

func normalizePhone(phone string) string {
	return strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	phone := normalizePhone(input.Phone)
	if phone == "" || input.Password == "" {
		return AuthResult{}, invalidf("phone and password required")
	}
	if !phonePattern.MatchString(phone) {
		return AuthResult{}, invalidf("phone number %q is not valid", input.Phone)
	}
	if len(input.Password) < minPasswordLength {
		return AuthResult{}, invalidf("password must have at least %d characters", minPasswordLength)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        s.Email(phone),
		PasswordHash: passwordHash,
		Status:       models.UserStatusActive,
	}
	profile := models.Profile{
		ID:    user.ID,
		Phone: phone,
		Role:  s.roleFor(phone),
	}

	err = s.store.InTx(ctx, func(repos repository.Set) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			return err
		}
		return repos.Profiles.Create(ctx, profile)
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return AuthResult{}, ErrPhoneTaken
	}
	if err != nil {
		return AuthResult{}, unavailable(err)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(profile.Role)).Msg("user registered")
	return s.createSession(ctx, user, profile, input.IPAddress, input.UserAgent)
}

func (s *AuthService) roleFor(phone string) models.UserRole {
	if slices.Contains(s.cfg.Identity.AdminPhones, phone) {
		return models.UserRoleAdmin
	}
	return models.UserRoleUser
}

type LoginInput struct {
	Phone     string
	Password  string
	IPAddress string
	UserAgent string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	repos := s.store.Repos()
	user, err := repos.Users.FindByEmail(ctx, s.Email(input.Phone))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, unavailable(err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	profile, err := repos.Profiles.GetByID(ctx, user.ID)
	if err != nil {
		return AuthResult{}, unavailable(err)
	}

	return s.createSession(ctx, user, profile, input.IPAddress, input.UserAgent)
}

func (s *AuthService) createSession(
	ctx context.Context,
	user models.User,
	profile models.Profile,
	ipAddress string,
	userAgent string,
) (AuthResult, error) {
	refresh, err := security.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}

	session := models.AuthSession{
		ID:               ids.New(),
		UserID:           user.ID,
		RefreshTokenHash: refresh.Hash,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        s.now().Add(s.cfg.Security.JWTRefreshTTL),
	}

	accessToken, err := s.accessToken(user, profile, session.ID)
	if err != nil {
		return AuthResult{}, err
	}

	repos := s.store.Repos()
	if err := repos.AuthSessions.Create(ctx, session); err != nil {
		return AuthResult{}, unavailable(err)
	}

	if s.cfg.Security.MaxSessions > 0 {
		if err := repos.AuthSessions.DeleteOldest(ctx, user.ID, s.cfg.Security.MaxSessions); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
		}
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refresh.Plain,
		SessionID:    session.ID,
		User:         user,
		Profile:      profile,
	}, nil
}

func (s *AuthService) accessToken(user models.User, profile models.Profile, sessionID string) (string, error) {
	if s.tokens == nil {
		return "", security.ErrEmptySecret
	}
	return s.tokens.Issue(user.ID, sessionID, string(profile.Role))
}

type RefreshInput struct {
	UserID       string
	RefreshToken string
}

func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	if input.UserID == "" || input.RefreshToken == "" {
		return AuthResult{}, invalidf("user id and refresh token required")
	}

	repos := s.store.Repos()
	user, err := repos.Users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, unavailable(err)
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	refreshHash := security.HashRefreshToken(input.RefreshToken)
	session, err := repos.AuthSessions.FindByRefreshHash(ctx, input.UserID, refreshHash)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	if session.ExpiresAt.Before(s.now()) {
		_ = repos.AuthSessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrInvalidCredentials
	}

	profile, err := repos.Profiles.GetByID(ctx, user.ID)
	if err != nil {
		return AuthResult{}, unavailable(err)
	}

	refresh, err := security.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	if err := repos.AuthSessions.Rotate(ctx, session.ID, refresh.Hash, s.now().Add(s.cfg.Security.JWTRefreshTTL)); err != nil {
		return AuthResult{}, unavailable(err)
	}

	accessToken, err := s.accessToken(user, profile, session.ID)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refresh.Plain,
		SessionID:    session.ID,
		User:         user,
		Profile:      profile,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	err := s.store.Repos().AuthSessions.DeleteByID(ctx, sessionID)
	if errors.Is(err, repository.ErrAuthSessionNotFound) {
		return nil
	}
	return unavailable(err)
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	User    models.User
	Profile models.Profile
	Session models.AuthSession
}

func (p Principal) Actor() Actor {
	return UserActor(p.User.ID, p.Profile.Role)
}

// Authenticate validates an access token against the stored login session.
func (s *AuthService) Authenticate(ctx context.Context, token, ip, userAgent string) (Principal, error) {
	if s.tokens == nil {
		return Principal{}, ErrInvalidCredentials
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	repos := s.store.Repos()
	session, err := repos.AuthSessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrAuthSessionNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, unavailable(err)
	}
	if session.UserID != claims.UserID || session.ExpiresAt.Before(s.now()) {
		return Principal{}, ErrInvalidCredentials
	}

	user, err := repos.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, unavailable(err)
	}
	if user.Status != models.UserStatusActive {
		return Principal{}, ErrUserSuspended
	}

	profile, err := repos.Profiles.GetByID(ctx, user.ID)
	if err != nil {
		return Principal{}, unavailable(err)
	}

	if err := repos.AuthSessions.Touch(ctx, session.ID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", session.ID).Msg("touch auth session failed")
	}

	return Principal{User: user, Profile: profile, Session: session}, nil
}

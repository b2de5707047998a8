package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/observability"
	"vidtube-serverless/internal/user"
)

// UserStore is the part of the credential store the session flows need.
type UserStore interface {
	FindByLogin(ctx context.Context, username, email string) (user.User, error)
	FindByID(ctx context.Context, id string) (user.User, error)
	FindProfileByID(ctx context.Context, id string) (user.Profile, error)
	SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type Service struct {
	users        UserStore
	tokens       *TokenService
	passwordCost int
}

func NewService(users UserStore, tokens *TokenService) *Service {
	return &Service{users: users, tokens: tokens}
}

// WithPasswordCost overrides the bcrypt cost used when changing passwords.
func (s *Service) WithPasswordCost(cost int) *Service {
	s.passwordCost = cost
	return s
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if username == "" && email == "" {
		return Session{}, httpx.BadRequest("username or email is required")
	}
	if in.Password == "" {
		return Session{}, httpx.BadRequest("password is required")
	}

	found, err := s.users.FindByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			observability.RecordSessionEvent("login", "unknown_user")
			return Session{}, httpx.NotFound("User does not exist")
		}
		return Session{}, err
	}

	if !user.CheckPassword(found.PasswordHash, in.Password) {
		observability.RecordSessionEvent("login", "invalid_credentials")
		return Session{}, httpx.Unauthorized("Invalid user credentials")
	}

	pair, err := s.tokens.Issue(identityOf(found))
	if err != nil {
		return Session{}, err
	}
	if err := s.users.SetRefreshToken(ctx, found.ID, pair.RefreshToken, s.refreshExpiry()); err != nil {
		return Session{}, fmt.Errorf("persist refresh token: %w", err)
	}

	profile, err := s.users.FindProfileByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}

	observability.RecordSessionEvent("login", "success")
	return Session{User: profile, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Refresh exchanges the stored refresh token for a new pair. A token that no
// longer matches the stored one, including a replay of a rotated token, is rejected.
func (s *Service) Refresh(ctx context.Context, incoming string) (TokenPair, error) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return TokenPair{}, httpx.Unauthorized("Unauthorized request")
	}

	claims, err := s.tokens.VerifyRefresh(incoming)
	if err != nil {
		observability.RecordSessionEvent("refresh", "invalid_token")
		return TokenPair{}, err
	}

	found, err := s.users.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			observability.RecordSessionEvent("refresh", "unknown_user")
			return TokenPair{}, httpx.Unauthorized("Invalid refresh token")
		}
		return TokenPair{}, err
	}

	if subtle.ConstantTimeCompare([]byte(incoming), []byte(found.RefreshToken)) != 1 {
		observability.RecordSessionEvent("refresh", "stale_token")
		return TokenPair{}, httpx.Unauthorized("Refresh token is expired or used")
	}

	pair, err := s.tokens.Issue(identityOf(found))
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := s.users.RotateRefreshToken(ctx, found.ID, incoming, pair.RefreshToken, s.refreshExpiry())
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		observability.RecordSessionEvent("refresh", "stale_token")
		return TokenPair{}, httpx.Unauthorized("Refresh token is expired or used")
	}

	observability.RecordSessionEvent("refresh", "success")
	return pair, nil
}

func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil && !errors.Is(err, user.ErrNotFound) {
		return err
	}
	observability.RecordSessionEvent("logout", "success")
	return nil
}

// ChangePassword replaces the password hash. The active refresh token is kept.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if in.OldPassword == "" || in.NewPassword == "" {
		return httpx.BadRequest("oldPassword and newPassword are required")
	}
	if err := user.CheckPasswordLength(in.NewPassword); err != nil {
		return err
	}

	found, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httpx.NotFound("User does not exist")
		}
		return err
	}

	if !user.CheckPassword(found.PasswordHash, in.OldPassword) {
		observability.RecordSessionEvent("change_password", "invalid_credentials")
		return httpx.BadRequest("Invalid old password")
	}

	hash, err := user.HashPassword(in.NewPassword, s.passwordCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	observability.RecordSessionEvent("change_password", "success")
	return nil
}

// Authenticate resolves an access token to the caller's projection.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (user.Profile, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return user.Profile{}, err
	}

	profile, err := s.users.FindProfileByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, httpx.Unauthorized("Invalid access token")
		}
		return user.Profile{}, err
	}
	return profile, nil
}

func (s *Service) refreshExpiry() time.Time {
	return s.tokens.clock.Now().UTC().Add(s.tokens.refreshTTL)
}

func identityOf(u user.User) Identity {
	return Identity{ID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName}
}

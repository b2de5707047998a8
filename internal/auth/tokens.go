package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"vidtube-serverless/internal/httpx"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 10 * 24 * time.Hour
)

var errEmptySecret = errors.New("token secrets must not be empty")

// TokenService signs and verifies HS256 access and refresh tokens with separate secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         clockwork.Clock
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, clock clockwork.Clock) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errEmptySecret
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         clock,
	}, nil
}

func (t *TokenService) RefreshTTL() time.Duration {
	return t.refreshTTL
}

// Issue signs a fresh access/refresh pair. Every call yields distinct tokens.
func (t *TokenService) Issue(id Identity) (TokenPair, error) {
	now := t.clock.Now().UTC()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		ID:               id.ID,
		Username:         id.Username,
		Email:            id.Email,
		FullName:         id.FullName,
		RegisteredClaims: t.registered(id.ID, now, t.accessTTL),
	})
	accessToken, err := access.SignedString(t.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		ID:               id.ID,
		RegisteredClaims: t.registered(id.ID, now, t.refreshTTL),
	})
	refreshToken, err := refresh.SignedString(t.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (t *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, claims, t.accessSecret); err != nil || claims.ID == "" {
		return nil, httpx.Unauthorized("Invalid access token")
	}
	return claims, nil
}

func (t *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(token, claims, t.refreshSecret); err != nil || claims.ID == "" {
		return nil, httpx.Unauthorized("Invalid refresh token")
	}
	return claims, nil
}

func (t *TokenService) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("token is not valid")
	}
	return nil
}

func (t *TokenService) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/media"
	"vidtube-serverless/internal/observability"
)

// Store is the part of the credential store the profile flows need.
type Store interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, input NewUser) (string, error)
	FindProfileByID(ctx context.Context, id string) (Profile, error)
	UpdateAccount(ctx context.Context, id string, input AccountUpdate) (Profile, error)
	UpdateAvatar(ctx context.Context, id, url string) (Profile, error)
	UpdateCoverImage(ctx context.Context, id, url string) (Profile, error)
}

type RegisterInput struct {
	Username       string `json:"username" validate:"required"`
	FullName       string `json:"fullName" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required"`
	AvatarPath     string `json:"-"`
	CoverImagePath string `json:"-"`
}

type AccountInput struct {
	Username string `json:"username" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

type Service struct {
	store        Store
	media        media.Host
	logger       *observability.Logger
	passwordCost int
}

func NewService(store Store, host media.Host, logger *observability.Logger) *Service {
	return &Service{store: store, media: host, logger: logger}
}

// WithPasswordCost overrides the bcrypt cost used for new accounts.
func (s *Service) WithPasswordCost(cost int) *Service {
	s.passwordCost = cost
	return s
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Profile, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)

	if in.Username == "" || in.Email == "" || in.FullName == "" || strings.TrimSpace(in.Password) == "" {
		return Profile{}, httpx.BadRequest("All fields are required")
	}
	if err := httpx.Validate(in); err != nil {
		return Profile{}, err
	}
	if err := CheckPasswordLength(in.Password); err != nil {
		return Profile{}, err
	}

	exists, err := s.store.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return Profile{}, err
	}
	if exists {
		return Profile{}, httpx.Conflict("User with username or email already exists")
	}

	if in.AvatarPath == "" {
		return Profile{}, httpx.BadRequest("Avatar file is required")
	}

	avatar, err := s.media.Upload(ctx, in.AvatarPath)
	if err != nil {
		return Profile{}, fmt.Errorf("upload avatar: %w", err)
	}
	if avatar == nil || avatar.URL == "" {
		return Profile{}, httpx.BadRequest("Avatar file is required")
	}

	var coverImageURL string
	if in.CoverImagePath != "" {
		cover, err := s.media.Upload(ctx, in.CoverImagePath)
		if err != nil {
			return Profile{}, fmt.Errorf("upload cover image: %w", err)
		}
		if cover != nil {
			coverImageURL = cover.URL
		}
	}

	hash, err := HashPassword(in.Password, s.passwordCost)
	if err != nil {
		return Profile{}, err
	}

	id, err := s.store.Create(ctx, NewUser{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Avatar:       avatar.URL,
		CoverImage:   coverImageURL,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Profile{}, httpx.Conflict("User with username or email already exists")
		}
		return Profile{}, err
	}

	created, err := s.store.FindProfileByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, httpx.Internal("Something went wrong while registering the user", err)
		}
		return Profile{}, err
	}

	return created, nil
}

func (s *Service) UpdateAccount(ctx context.Context, id string, in AccountInput) (Profile, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)

	if in.Username == "" || in.Email == "" || in.FullName == "" {
		return Profile{}, httpx.BadRequest("All fields are required")
	}
	if err := httpx.Validate(in); err != nil {
		return Profile{}, err
	}

	updated, err := s.store.UpdateAccount(ctx, id, AccountUpdate{
		Username: in.Username,
		Email:    in.Email,
		FullName: in.FullName,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return Profile{}, httpx.Conflict("User with username or email already exists")
		case errors.Is(err, ErrNotFound):
			return Profile{}, httpx.NotFound("User does not exist")
		}
		return Profile{}, err
	}

	return updated, nil
}

// UpdateAvatar replaces the avatar of current with the staged file and removes
// the previous object from the media host.
func (s *Service) UpdateAvatar(ctx context.Context, current Profile, localPath string) (Profile, error) {
	if localPath == "" {
		return Profile{}, httpx.BadRequest("Avatar file is missing")
	}

	asset, err := s.media.Upload(ctx, localPath)
	if err != nil {
		return Profile{}, fmt.Errorf("upload avatar: %w", err)
	}
	if asset == nil || asset.URL == "" {
		return Profile{}, httpx.BadRequest("Error while uploading on avatar")
	}

	updated, err := s.store.UpdateAvatar(ctx, current.ID, asset.URL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, httpx.NotFound("User does not exist")
		}
		return Profile{}, err
	}

	s.destroyPrevious(ctx, current.ID, current.Avatar, asset.URL)
	return updated, nil
}

func (s *Service) UpdateCoverImage(ctx context.Context, current Profile, localPath string) (Profile, error) {
	if localPath == "" {
		return Profile{}, httpx.BadRequest("Cover image file is missing")
	}

	asset, err := s.media.Upload(ctx, localPath)
	if err != nil {
		return Profile{}, fmt.Errorf("upload cover image: %w", err)
	}
	if asset == nil || asset.URL == "" {
		return Profile{}, httpx.BadRequest("Error while uploading on cover image")
	}

	updated, err := s.store.UpdateCoverImage(ctx, current.ID, asset.URL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, httpx.NotFound("User does not exist")
		}
		return Profile{}, err
	}

	s.destroyPrevious(ctx, current.ID, current.CoverImage, asset.URL)
	return updated, nil
}

// destroyPrevious never fails the request; a leaked object is only reported.
func (s *Service) destroyPrevious(ctx context.Context, userID, previousURL, currentURL string) {
	if previousURL == "" || previousURL == currentURL {
		return
	}

	if err := s.media.Destroy(ctx, previousURL); err != nil {
		sentry.CaptureException(err)
		if s.logger != nil {
			s.logger.Error("media_cleanup_failed", map[string]any{
				"user_id": userID,
				"url":     previousURL,
				"error":   err.Error(),
			})
		}
	}
}

// Package usertest provides an in-memory credential store for tests.
package usertest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidtube-serverless/internal/user"
)

type Store struct {
	mu           sync.Mutex
	users        map[string]user.User
	watchHistory map[string][]string
	now          func() time.Time

	// FailCreate makes the next Create return this error.
	FailCreate error
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]user.User),
		watchHistory: make(map[string][]string),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the stored record including password hash and refresh token.
func (s *Store) Get(id string) (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// Put inserts or replaces a record as-is.
func (s *Store) Put(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) SetWatchHistory(id string, videoIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchHistory[id] = append([]string(nil), videoIDs...)
}

func (s *Store) FindByLogin(_ context.Context, username, email string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *user.User
	for _, u := range s.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			if found == nil || u.CreatedAt.Before(found.CreatedAt) {
				candidate := u
				found = &candidate
			}
		}
	}
	if found == nil {
		return user.User{}, user.ErrNotFound
	}
	return *found, nil
}

func (s *Store) FindByID(_ context.Context, id string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindProfileByID(_ context.Context, id string) (user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.Profile{}, user.ErrNotFound
	}
	return s.profile(u), nil
}

func (s *Store) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken("", username, email), nil
}

func (s *Store) Create(_ context.Context, input user.NewUser) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		err := s.FailCreate
		s.FailCreate = nil
		return "", err
	}
	if s.taken("", input.Username, input.Email) {
		return "", user.ErrDuplicate
	}

	id := uuid.NewString()
	now := s.now()
	s.users[id] = user.User{
		ID:           id,
		Username:     input.Username,
		Email:        input.Email,
		FullName:     input.FullName,
		PasswordHash: input.PasswordHash,
		Avatar:       input.Avatar,
		CoverImage:   input.CoverImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return id, nil
}

func (s *Store) UpdateAccount(_ context.Context, id string, input user.AccountUpdate) (user.Profile, error) {
	return s.update(id, func(u *user.User) error {
		if s.taken(id, input.Username, input.Email) {
			return user.ErrDuplicate
		}
		u.Username = input.Username
		u.Email = input.Email
		u.FullName = input.FullName
		return nil
	})
}

func (s *Store) UpdateAvatar(_ context.Context, id, url string) (user.Profile, error) {
	return s.update(id, func(u *user.User) error {
		u.Avatar = url
		return nil
	})
}

func (s *Store) UpdateCoverImage(_ context.Context, id, url string) (user.Profile, error) {
	return s.update(id, func(u *user.User) error {
		u.CoverImage = url
		return nil
	})
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := s.update(id, func(u *user.User) error {
		u.PasswordHash = passwordHash
		return nil
	})
	return err
}

func (s *Store) SetRefreshToken(_ context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	exp := expiresAt.UTC()
	u.RefreshToken = token
	u.RefreshTokenExpiresAt = &exp
	s.users[id] = u
	return nil
}

func (s *Store) RotateRefreshToken(_ context.Context, id, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.RefreshToken == "" || u.RefreshToken != oldToken {
		return false, nil
	}
	exp := expiresAt.UTC()
	u.RefreshToken = newToken
	u.RefreshTokenExpiresAt = &exp
	s.users[id] = u
	return true, nil
}

func (s *Store) ClearRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.RefreshToken = ""
	u.RefreshTokenExpiresAt = nil
	s.users[id] = u
	return nil
}

func (s *Store) ClearExpiredRefreshTokens(_ context.Context, now time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cleared int64
	for id, u := range s.users {
		if batchSize > 0 && cleared >= int64(batchSize) {
			break
		}
		if u.RefreshToken == "" || u.RefreshTokenExpiresAt == nil || !u.RefreshTokenExpiresAt.Before(now) {
			continue
		}
		u.RefreshToken = ""
		u.RefreshTokenExpiresAt = nil
		s.users[id] = u
		cleared++
	}
	return cleared, nil
}

func (s *Store) update(id string, apply func(u *user.User) error) (user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.Profile{}, user.ErrNotFound
	}
	if err := apply(&u); err != nil {
		return user.Profile{}, err
	}
	u.UpdatedAt = s.now()
	s.users[id] = u
	return s.profile(u), nil
}

func (s *Store) taken(exceptID, username, email string) bool {
	for id, u := range s.users {
		if id == exceptID {
			continue
		}
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

func (s *Store) profile(u user.User) user.Profile {
	history := append([]string{}, s.watchHistory[u.ID]...)
	return user.Profile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FullName:     u.FullName,
		Avatar:       u.Avatar,
		CoverImage:   u.CoverImage,
		WatchHistory: history,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

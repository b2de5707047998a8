package auth_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"vidtube-serverless/internal/auth"
	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/user"
	"vidtube-serverless/internal/user/usertest"
)

const alicePassword = "wonderland"

type fixture struct {
	store   *usertest.Store
	clock   *clockwork.FakeClock
	service *auth.Service
	alice   user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tokens, err := auth.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 240*time.Hour, clock)
	require.NoError(t, err)

	hash, err := user.HashPassword(alicePassword, bcrypt.MinCost)
	require.NoError(t, err)

	store := usertest.NewStore()
	alice := user.User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		FullName:     "Alice Liddell",
		PasswordHash: hash,
		Avatar:       "https://media.test/alice.png",
	}
	store.Put(alice)

	return fixture{
		store:   store,
		clock:   clock,
		service: auth.NewService(store, tokens).WithPasswordCost(bcrypt.MinCost),
		alice:   alice,
	}
}

func (f fixture) stored(t *testing.T) user.User {
	t.Helper()
	u, ok := f.store.Get(f.alice.ID)
	require.True(t, ok)
	return u
}

func TestLogin_PersistsReturnedRefreshToken(t *testing.T) {
	f := newFixture(t)

	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "Alice", Password: alicePassword})
	require.NoError(t, err)

	assert.Equal(t, "u1", session.User.ID)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, session.RefreshToken, f.stored(t).RefreshToken)
	assert.Equal(t, f.alice.PasswordHash, f.stored(t).PasswordHash, "login never rewrites the password hash")
}

func TestLogin_ByEmail(t *testing.T) {
	f := newFixture(t)

	session, err := f.service.Login(context.Background(), auth.LoginInput{Email: "ALICE@example.com", Password: alicePassword})
	require.NoError(t, err)
	assert.Equal(t, "alice", session.User.Username)
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   auth.LoginInput
		status  int
		message string
	}{
		{"no identifier", auth.LoginInput{Password: alicePassword}, http.StatusBadRequest, "username or email is required"},
		{"no password", auth.LoginInput{Username: "alice"}, http.StatusBadRequest, "password is required"},
		{"unknown user", auth.LoginInput{Username: "bob", Password: alicePassword}, http.StatusNotFound, "User does not exist"},
		{"wrong password", auth.LoginInput{Username: "alice", Password: "nope"}, http.StatusUnauthorized, "Invalid user credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.Login(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.status, httpx.StatusOf(err))
			assert.Equal(t, tt.message, httpx.MessageOf(err))
			assert.Empty(t, f.stored(t).RefreshToken)
		})
	}
}

func TestLogin_OverwritesPreviousSession(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, second.RefreshToken, f.stored(t).RefreshToken)

	_, err = f.service.Refresh(context.Background(), first.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	f := newFixture(t)
	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	pair, err := f.service.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, pair.RefreshToken)
	assert.Equal(t, pair.RefreshToken, f.stored(t).RefreshToken)

	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))
	assert.Equal(t, "Refresh token is expired or used", httpx.MessageOf(err))
}

func TestRefresh_ConcurrentRotationAllowsOneWinner(t *testing.T) {
	f := newFixture(t)
	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Refresh(context.Background(), session.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))
	}
	assert.Equal(t, 1, succeeded)
}

func TestRefresh_InvalidToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Refresh(context.Background(), "")
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))

	_, err = f.service.Refresh(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, "Invalid refresh token", httpx.MessageOf(err))
}

func TestRefresh_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	f.clock.Advance(241 * time.Hour)

	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))
}

func TestLogout_ClearsStoredToken(t *testing.T) {
	f := newFixture(t)
	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), f.alice.ID))
	assert.Empty(t, f.stored(t).RefreshToken)
	assert.Nil(t, f.stored(t).RefreshTokenExpiresAt)

	require.NoError(t, f.service.Logout(context.Background(), f.alice.ID))

	_, err = f.service.Refresh(context.Background(), session.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	err = f.service.ChangePassword(context.Background(), f.alice.ID, auth.ChangePasswordInput{
		OldPassword: alicePassword,
		NewPassword: "looking-glass",
	})
	require.NoError(t, err)

	stored := f.stored(t)
	assert.True(t, user.CheckPassword(stored.PasswordHash, "looking-glass"))
	assert.Equal(t, session.RefreshToken, stored.RefreshToken, "refresh token survives a password change")
}

func TestChangePassword_Failures(t *testing.T) {
	f := newFixture(t)

	err := f.service.ChangePassword(context.Background(), f.alice.ID, auth.ChangePasswordInput{OldPassword: alicePassword})
	assert.Equal(t, http.StatusBadRequest, httpx.StatusOf(err))

	err = f.service.ChangePassword(context.Background(), f.alice.ID, auth.ChangePasswordInput{
		OldPassword: "wrong",
		NewPassword: "looking-glass",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpx.StatusOf(err))
	assert.Equal(t, "Invalid old password", httpx.MessageOf(err))
	assert.True(t, user.CheckPassword(f.stored(t).PasswordHash, alicePassword))

	err = f.service.ChangePassword(context.Background(), f.alice.ID, auth.ChangePasswordInput{
		OldPassword: alicePassword,
		NewPassword: strings.Repeat("p", user.MaxPasswordBytes+1),
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httpx.StatusOf(err))
	assert.True(t, user.CheckPassword(f.stored(t).PasswordHash, alicePassword))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	session, err := f.service.Login(context.Background(), auth.LoginInput{Username: "alice", Password: alicePassword})
	require.NoError(t, err)

	profile, err := f.service.Authenticate(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	_, err = f.service.Authenticate(context.Background(), session.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, httpx.StatusOf(err))
}

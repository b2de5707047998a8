package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidtube-serverless/internal/auth"
	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/user"
)

func newRouter(f fixture) http.Handler {
	h := auth.NewHandler(f.service)
	r := chi.NewRouter()
	r.Post("/login", httpx.Handle(h.Login))
	r.Post("/refresh-token", httpx.Handle(h.Refresh))
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(f.service))
		r.Post("/logout", httpx.Handle(h.Logout))
		r.Post("/change-password", httpx.Handle(h.ChangePassword))
		r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
			p, _ := user.ProfileFromContext(r.Context())
			_, _ = w.Write([]byte(p.Username))
		})
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandlerLogin_SetsSecureCookies(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newRouter(f), http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data    auth.Session `json:"data"`
		Success bool         `json:"success"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "alice", envelope.Data.User.Username)

	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieNamed(rec, name)
		require.NotNil(t, c, name)
		assert.True(t, c.HttpOnly, name)
		assert.True(t, c.Secure, name)
		assert.Equal(t, "/", c.Path, name)
	}
	assert.Equal(t, envelope.Data.AccessToken, cookieNamed(rec, "accessToken").Value)
	assert.Equal(t, envelope.Data.RefreshToken, cookieNamed(rec, "refreshToken").Value)
	assert.Equal(t, envelope.Data.RefreshToken, f.stored(t).RefreshToken)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandlerLogin_WrongPasswordSetsNoCookie(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newRouter(f), http.MethodPost, "/login", `{"username":"alice","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Empty(t, f.stored(t).RefreshToken)
}

func TestHandlerRefresh_CookieThenReplay(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	login := do(t, router, http.MethodPost, "/login", `{"email":"alice@example.com","password":"wonderland"}`)
	require.Equal(t, http.StatusOK, login.Code)
	original := cookieNamed(login, "refreshToken")

	refreshed := do(t, router, http.MethodPost, "/refresh-token", "", original)
	require.Equal(t, http.StatusOK, refreshed.Code)
	rotated := cookieNamed(refreshed, "refreshToken")
	require.NotNil(t, rotated)
	assert.NotEqual(t, original.Value, rotated.Value)

	replay := do(t, router, http.MethodPost, "/refresh-token", "", original)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Empty(t, replay.Header().Values("Set-Cookie"))
}

func TestHandlerRefresh_BodyToken(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	login := do(t, router, http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)
	require.Equal(t, http.StatusOK, login.Code)
	token := cookieNamed(login, "refreshToken").Value

	rec := do(t, router, http.MethodPost, "/refresh-token", `{"refreshToken":"`+token+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerRefresh_MissingToken(t *testing.T) {
	router := newRouter(newFixture(t))

	for _, body := range []string{"", "{not json", `{"token":"abc"}`, `{}`} {
		rec := do(t, router, http.MethodPost, "/refresh-token", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "Unauthorized request", body)
		assert.Nil(t, cookieNamed(rec, "refreshToken"), body)
	}
}

func TestMiddleware_AcceptsCookieOrBearer(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	login := do(t, router, http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)
	access := cookieNamed(login, "accessToken")

	rec := do(t, router, http.MethodGet, "/whoami", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.Header.Set("Authorization", "Bearer "+access.Value)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	rec := do(t, newRouter(newFixture(t)), http.MethodGet, "/whoami", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestHandlerLogout_ClearsCookiesAndSession(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	login := do(t, router, http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)
	access := cookieNamed(login, "accessToken")

	rec := do(t, router, http.MethodPost, "/logout", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.stored(t).RefreshToken)

	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieNamed(rec, name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.True(t, c.MaxAge < 0)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
	}
}

func TestHandlerChangePassword(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	login := do(t, router, http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`)
	access := cookieNamed(login, "accessToken")

	rec := do(t, router, http.MethodPost, "/change-password", `{"oldPassword":"wrong","newPassword":"looking-glass"}`, access)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/change-password", `{"oldPassword":"wonderland","newPassword":"looking-glass"}`, access)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/login", `{"username":"alice","password":"looking-glass"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

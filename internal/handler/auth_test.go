package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/handler"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/session"
)

type fakeProvider struct {
	user *session.GitHubUser
	err  error
}

func (f *fakeProvider) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*session.GitHubUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeAuth struct {
	anonymous string
	users     map[string]*model.User
	err       error
}

func (f *fakeAuth) LoginGitHub(_ context.Context, gh *session.GitHubUser, anonymousOwner string) (*model.User, error) {
	f.anonymous = anonymousOwner
	if f.err != nil {
		return nil, f.err
	}
	u := &model.User{ID: "user-1", GitHubID: gh.ID, Login: gh.Login}
	f.users = map[string]*model.User{u.ID: u}
	return u, nil
}

func (f *fakeAuth) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func newAuthFixture(t *testing.T, provider *fakeProvider, auth *fakeAuth) (*handler.AuthHandler, *session.TokenService) {
	t.Helper()
	tokens, err := session.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	sessions := session.NewManager(tokens, false, testLogger())
	return handler.NewAuthHandler(provider, auth, sessions, testLogger()), tokens
}

func cookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// startLogin runs the login step and returns the state GitHub would echo.
func startLogin(t *testing.T, h *handler.AuthHandler) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := cookie(rr, "oauth_state")
	require.NotNil(t, state)
	assert.Contains(t, rr.Header().Get("Location"), "state="+state.Value)
	return state
}

func TestAuthHandler_CallbackSuccess(t *testing.T) {
	auth := &fakeAuth{}
	h, tokens := newAuthFixture(t, &fakeProvider{user: &session.GitHubUser{ID: 42, Login: "octocat"}}, auth)
	state := startLogin(t, h)

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=abc&state="+state.Value, nil)
	req.AddCookie(state)
	req = asOwner(req, "anon-1")
	rr := httptest.NewRecorder()
	h.HandleGitHubCallback(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, "anon-1", auth.anonymous, "anonymous settings are handed over")

	sess := cookie(rr, session.CookieName)
	require.NotNil(t, sess)
	id, err := tokens.Validate(sess.Value)
	require.NoError(t, err)
	assert.Equal(t, session.Identity{Subject: "user-1", User: true}, id)
}

func TestAuthHandler_CallbackRejects(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		auth     *fakeAuth
		query    func(state string) string
		status   int
	}{
		{
			name:     "state mismatch",
			provider: &fakeProvider{user: &session.GitHubUser{ID: 1}},
			auth:     &fakeAuth{},
			query:    func(string) string { return "code=abc&state=forged" },
			status:   http.StatusBadRequest,
		},
		{
			name:     "missing code",
			provider: &fakeProvider{user: &session.GitHubUser{ID: 1}},
			auth:     &fakeAuth{},
			query:    func(s string) string { return "state=" + s },
			status:   http.StatusBadRequest,
		},
		{
			name:     "user denied",
			provider: &fakeProvider{},
			auth:     &fakeAuth{},
			query:    func(s string) string { return "error=access_denied&state=" + s },
			status:   http.StatusSeeOther,
		},
		{
			name:     "exchange fails",
			provider: &fakeProvider{err: errors.New("bad code")},
			auth:     &fakeAuth{},
			query:    func(s string) string { return "code=abc&state=" + s },
			status:   http.StatusBadGateway,
		},
		{
			name:     "login fails",
			provider: &fakeProvider{user: &session.GitHubUser{ID: 1}},
			auth:     &fakeAuth{err: errors.New("db down")},
			query:    func(s string) string { return "code=abc&state=" + s },
			status:   http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newAuthFixture(t, tt.provider, tt.auth)
			state := startLogin(t, h)

			req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+tt.query(state.Value), nil)
			req.AddCookie(state)
			rr := httptest.NewRecorder()
			h.HandleGitHubCallback(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			assert.Nil(t, cookie(rr, session.CookieName), "no session for a failed login")
		})
	}
}

func TestAuthHandler_CallbackWithoutStateCookie(t *testing.T) {
	h, _ := newAuthFixture(t, &fakeProvider{user: &session.GitHubUser{ID: 1}}, &fakeAuth{})

	rr := httptest.NewRecorder()
	h.HandleGitHubCallback(rr, httptest.NewRequest(http.MethodGet, "/auth/github/callback?code=abc&state=", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	h, tokens := newAuthFixture(t, &fakeProvider{}, &fakeAuth{})

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	sess := cookie(rr, session.CookieName)
	require.NotNil(t, sess)
	id, err := tokens.Validate(sess.Value)
	require.NoError(t, err)
	assert.False(t, id.User)
}

func TestAuthHandler_Me(t *testing.T) {
	auth := &fakeAuth{users: map[string]*model.User{"user-1": {ID: "user-1", Login: "octocat"}}}
	h, _ := newAuthFixture(t, &fakeProvider{}, auth)

	t.Run("signed in", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(session.WithIdentity(req.Context(), session.Identity{Subject: "user-1", User: true}))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"login":"octocat"`)
	})

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleMe(rr, asOwner(httptest.NewRequest(http.MethodGet, "/api/me", nil), "anon-1"))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

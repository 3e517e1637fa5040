package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/session"
)

// OAuthProvider is the part of session.GitHubProvider the handlers use.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*session.GitHubUser, error)
}

// Authenticator is the part of service.AuthService the handlers use.
type Authenticator interface {
	LoginGitHub(ctx context.Context, ghUser *session.GitHubUser, anonymousOwner string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler implements the GitHub login flow.
//
//  1. GET /auth/github/login     → redirect to GitHub with a random state
//  2. GET /auth/github/callback  → check state, exchange code, reissue session
//  3. POST /auth/logout          → back to a fresh anonymous session
type AuthHandler struct {
	github   OAuthProvider
	auth     Authenticator
	sessions *session.Manager
	logger   *slog.Logger
}

func NewAuthHandler(github OAuthProvider, auth Authenticator, sessions *session.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		github:   github,
		auth:     auth,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := session.NewState()
	h.sessions.SetStateCookie(w, state)
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	expected := h.sessions.ConsumeState(w, r)
	if expected == "" || r.URL.Query().Get("state") != expected {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The user clicked "Cancel" on GitHub.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	var anonymous string
	if id, ok := session.FromContext(r.Context()); ok && !id.User {
		anonymous = id.Subject
	}

	user, err := h.auth.LoginGitHub(r.Context(), ghUser, anonymous)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.SetCookie(w, session.Identity{Subject: user.ID, User: true}); err != nil {
		h.logger.Error("auth callback: issuing session failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout swaps the user session for a new anonymous one, so the
// page keeps working with default settings.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SetCookie(w, session.Anonymous()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in user, or 404 for anonymous sessions.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(w, r)
	if !ok {
		return
	}
	if !id.User {
		writeError(w, apperror.NotFound("user", "anonymous"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), id.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

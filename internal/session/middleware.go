package session

import (
	"context"
	"log/slog"
	"net/http"
)

// CookieName is the name of the session cookie.
const CookieName = "session"

type contextKey struct{}

// FromContext returns the identity Middleware attached to the request.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.Subject != ""
}

// WithIdentity returns a copy of ctx carrying id. Tests use it to skip
// the cookie round-trip.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Manager issues and reads session cookies.
type Manager struct {
	tokens *TokenService
	secure bool
	logger *slog.Logger
}

// NewManager creates a Manager. secure marks cookies HTTPS-only.
func NewManager(tokens *TokenService, secure bool, logger *slog.Logger) *Manager {
	return &Manager{tokens: tokens, secure: secure, logger: logger}
}

// Middleware guarantees every request has an Identity in its context.
// A missing, expired or forged cookie is replaced by a fresh anonymous one.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.read(r)
		if !ok {
			id = Anonymous()
			if err := m.SetCookie(w, id); err != nil {
				m.logger.Error("failed to issue session", slog.String("error", err.Error()))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (m *Manager) read(r *http.Request) (Identity, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Identity{}, false
	}
	id, err := m.tokens.Validate(cookie.Value)
	if err != nil {
		m.logger.Debug("discarding session cookie", slog.String("error", err.Error()))
		return Identity{}, false
	}
	return id, true
}

// SetCookie (re)issues the session cookie for id.
func (m *Manager) SetCookie(w http.ResponseWriter, id Identity) error {
	token, err := m.tokens.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SetStateCookie stores the OAuth state for the callback to compare.
func (m *Manager) SetStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ConsumeState returns the stored OAuth state and clears the cookie.
func (m *Manager) ConsumeState(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(stateCookie)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
	if err != nil {
		return ""
	}
	return c.Value
}

const stateCookie = "oauth_state"

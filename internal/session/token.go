// Package session identifies who owns a settings bag.
//
// Every visitor carries a signed "session" cookie. Anonymous visitors get a
// random owner id on their first request; after GitHub login the cookie is
// reissued with the user's id as subject. The cookie is an HS256 JWT, so the
// server keeps no session table.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "js-playground"
	// TTL is how long a session cookie stays valid.
	TTL = 30 * 24 * time.Hour
)

// Identity is the owner a request acts for.
type Identity struct {
	// Subject is the settings owner id: an xid for anonymous visitors, or
	// model.User.ID once signed in.
	Subject string
	// User is true when Subject is a signed-in user.
	User bool
}

// Anonymous returns a brand-new anonymous identity.
func Anonymous() Identity {
	return Identity{Subject: xid.New().String()}
}

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. secret must be at least 16 bytes.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("session: secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: TTL, now: time.Now}, nil
}

type claims struct {
	jwt.RegisteredClaims
	User bool `json:"usr,omitempty"`
}

// Issue signs a token for id that expires after TTL.
func (s *TokenService) Issue(id Identity) (string, error) {
	return s.issue(id, s.ttl)
}

func (s *TokenService) issue(id Identity, ttl time.Duration) (string, error) {
	if id.Subject == "" {
		return "", errors.New("session: identity has no subject")
	}
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		User: id.User,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("session: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer and expiry and returns the identity.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.New("session: token expired")
		}
		return Identity{}, fmt.Errorf("session: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("session: invalid token claims")
	}
	if c.Subject == "" {
		return Identity{}, errors.New("session: token has no subject")
	}

	return Identity{Subject: c.Subject, User: c.User}, nil
}

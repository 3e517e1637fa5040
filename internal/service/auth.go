package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
	"github.com/sakif/js-playground/internal/session"
)

// SettingsAdopter moves an anonymous owner's settings to a user.
type SettingsAdopter interface {
	Adopt(ctx context.Context, from, to string) error
}

// AuthService handles GitHub sign-in. It does not touch cookies; the
// handler reissues the session for the returned user.
type AuthService struct {
	users    repository.UserRepository
	settings SettingsAdopter
	logger   *slog.Logger
}

func NewAuthService(users repository.UserRepository, settings SettingsAdopter, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		settings: settings,
		logger:   logger,
	}
}

// LoginGitHub upserts the GitHub account and moves the anonymous visitor's
// settings over if the user has none yet. A failed copy is logged, not
// returned: the login itself succeeded.
func (s *AuthService) LoginGitHub(ctx context.Context, ghUser *session.GitHubUser, anonymousOwner string) (*model.User, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	if err := s.settings.Adopt(ctx, anonymousOwner, user.ID); err != nil {
		s.logger.Warn("could not carry settings over to user",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return user, nil
}

// GetUserByID fetches a user; apperror.ErrNotFound passes through.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts or updates a user based on their GitHub ID. An existing
// user keeps their internal ID, so settings stay attached across logins.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var (
		existingID string
		createdAt  time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &createdAt)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		// Refresh the profile in case login/email/avatar changed.
		user.ID = existingID
		user.CreatedAt = createdAt
		user.UpdatedAt = time.Now()
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
	} else {
		now := time.Now()
		user.ID = xid.New().String()
		user.CreatedAt = now
		user.UpdatedAt = now

		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO users (id, github_id, login, email, avatar_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.GitHubID,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
		}
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.GitHubID,
		&u.Login,
		&u.Email,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

var _ repository.SettingsRepository = (*DB)(nil)

// GetSettings returns the owner's bag or apperror.ErrNotFound.
func (db *DB) GetSettings(ctx context.Context, ownerID string) (*model.Settings, error) {
	s := model.Settings{OwnerID: ownerID}

	err := db.conn.QueryRowContext(ctx,
		`SELECT language, theme, auto_save, auto_run, code, updated_at
		 FROM settings WHERE owner_id = ?`,
		ownerID,
	).Scan(&s.Language, &s.Theme, &s.AutoSave, &s.AutoRun, &s.Code, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("settings", ownerID)
		}
		return nil, fmt.Errorf("sqlite: getting settings %s: %w", ownerID, err)
	}

	return &s, nil
}

// UpsertSettings writes the whole bag, creating the row if needed.
func (db *DB) UpsertSettings(ctx context.Context, s *model.Settings) error {
	s.UpdatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO settings (owner_id, language, theme, auto_save, auto_run, code, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
			language   = excluded.language,
			theme      = excluded.theme,
			auto_save  = excluded.auto_save,
			auto_run   = excluded.auto_run,
			code       = excluded.code,
			updated_at = excluded.updated_at`,
		s.OwnerID,
		s.Language,
		s.Theme,
		s.AutoSave,
		s.AutoRun,
		s.Code,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting settings %s: %w", s.OwnerID, err)
	}
	return nil
}

// UpdateCode touches only the code column of an existing row.
func (db *DB) UpdateCode(ctx context.Context, ownerID, code string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE settings SET code = ?, updated_at = ? WHERE owner_id = ?`,
		code, time.Now(), ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating code %s: %w", ownerID, err)
	}
	return notFoundIfNoRows(result, ownerID)
}

func (db *DB) DeleteSettings(ctx context.Context, ownerID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM settings WHERE owner_id = ?`, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting settings %s: %w", ownerID, err)
	}
	return notFoundIfNoRows(result, ownerID)
}

func notFoundIfNoRows(result sql.Result, ownerID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("settings", ownerID)
	}
	return nil
}

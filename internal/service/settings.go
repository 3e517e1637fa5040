// Package service contains the business rules between HTTP handlers and
// storage. Services validate input, return apperror values the handlers can
// map to status codes, and log what they change.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/debounce"
	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/repository"
)

const (
	MaxCodeLength = 100000 // ~100KB of code

	DefaultLanguage = "javascript"
	DefaultTheme    = model.ThemeDark

	// saveTimeout bounds one debounced write, which runs off any request.
	saveTimeout = 5 * time.Second
)

const (
	jsStarter = "// Start coding!\nconst greeting = (name) => console.log('Hello ' + name + '!');\ngreeting('World');"
	tsStarter = "// Start coding!\nconst greeting: (name: string) => void = (name) => console.log('Hello ' + name + '!');\ngreeting('World');"
)

// InitialCode returns the starter program shown for a language.
func InitialCode(language string) string {
	switch language {
	case "javascript", "node":
		return jsStarter
	case "typescript":
		return tsStarter
	default:
		return ""
	}
}

// Defaults is the bag an owner sees before saving anything.
func Defaults(ownerID string) *model.Settings {
	return &model.Settings{
		OwnerID:  ownerID,
		Language: DefaultLanguage,
		Theme:    DefaultTheme,
		AutoSave: true,
		AutoRun:  false,
		Code:     InitialCode(DefaultLanguage),
	}
}

var themes = map[string]bool{
	model.ThemeLight:        true,
	model.ThemeDark:         true,
	model.ThemeHighContrast: true,
}

// LanguageChecker reports whether a language id can be selected.
// *executor.Engine satisfies it.
type LanguageChecker interface {
	Supports(language string) bool
}

// AutosaveObserver counts debounced writes (e.g. Prometheus).
type AutosaveObserver interface {
	IncAutosave()
}

// SettingsService owns the per-owner settings bag.
type SettingsService struct {
	repo      repository.SettingsRepository
	languages LanguageChecker
	observer  AutosaveObserver
	logger    *slog.Logger
	autosave  *debounce.Keyed[string, string]
}

// NewSettingsService creates the service. Code autosaves are coalesced per
// owner and written autosaveDelay after the last SaveCode call.
func NewSettingsService(
	repo repository.SettingsRepository,
	languages LanguageChecker,
	autosaveDelay time.Duration,
	observer AutosaveObserver,
	logger *slog.Logger,
) *SettingsService {
	s := &SettingsService{
		repo:      repo,
		languages: languages,
		observer:  observer,
		logger:    logger,
	}
	s.autosave = debounce.New(autosaveDelay, s.writeCode)
	return s
}

// Get returns the stored bag, or the defaults when the owner has none.
func (s *SettingsService) Get(ctx context.Context, ownerID string) (*model.Settings, error) {
	if ownerID == "" {
		return nil, apperror.ValidationFailed("owner", "owner is required")
	}

	settings, err := s.repo.GetSettings(ctx, ownerID)
	if errors.Is(err, apperror.ErrNotFound) {
		return Defaults(ownerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	return settings, nil
}

// Update applies patch, validates the result and persists it.
//
// Switching language while the editor still holds the old starter program
// swaps in the new language's starter, as the page does.
func (s *SettingsService) Update(ctx context.Context, ownerID string, patch model.SettingsPatch) (*model.Settings, error) {
	current, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	next := *current

	if patch.Language != nil {
		next.Language = *patch.Language
		if patch.Code == nil && current.Code == InitialCode(current.Language) {
			next.Code = InitialCode(next.Language)
		}
	}
	if patch.Theme != nil {
		next.Theme = *patch.Theme
	}
	if patch.AutoSave != nil {
		next.AutoSave = *patch.AutoSave
	}
	if patch.AutoRun != nil {
		next.AutoRun = *patch.AutoRun
	}
	if patch.Code != nil {
		next.Code = *patch.Code
	}

	if err := s.validate(&next); err != nil {
		return nil, err
	}

	// An explicit write supersedes any autosave still waiting.
	s.autosave.Cancel(ownerID)

	if err := s.repo.UpsertSettings(ctx, &next); err != nil {
		s.logger.Error("failed to save settings",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("saving settings: %w", err)
	}

	s.logger.Info("settings updated",
		slog.String("owner", ownerID),
		slog.String("language", next.Language),
		slog.String("theme", next.Theme),
	)
	return &next, nil
}

// SaveCode schedules a debounced write of the editor buffer. It reports
// false, and schedules nothing, when the owner has autosave turned off.
func (s *SettingsService) SaveCode(ctx context.Context, ownerID, code string) (bool, error) {
	if len(code) > MaxCodeLength {
		return false, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	current, err := s.Get(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if !current.AutoSave {
		return false, nil
	}

	s.autosave.Call(ownerID, code)
	return true, nil
}

// Reset deletes the owner's bag and returns the defaults.
func (s *SettingsService) Reset(ctx context.Context, ownerID string) (*model.Settings, error) {
	if ownerID == "" {
		return nil, apperror.ValidationFailed("owner", "owner is required")
	}

	s.autosave.Cancel(ownerID)

	err := s.repo.DeleteSettings(ctx, ownerID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("deleting settings: %w", err)
	}

	s.logger.Info("settings reset", slog.String("owner", ownerID))
	return Defaults(ownerID), nil
}

// Adopt copies from's bag to to, unless to already has one. Login uses it
// so an anonymous visitor keeps their editor state after signing in.
func (s *SettingsService) Adopt(ctx context.Context, from, to string) error {
	if from == "" || to == "" || from == to {
		return nil
	}

	s.autosave.FlushKey(from)

	if _, err := s.repo.GetSettings(ctx, to); err == nil {
		return nil
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("getting settings: %w", err)
	}

	src, err := s.repo.GetSettings(ctx, from)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting settings: %w", err)
	}

	copied := *src
	copied.OwnerID = to
	if err := s.repo.UpsertSettings(ctx, &copied); err != nil {
		return fmt.Errorf("copying settings: %w", err)
	}

	s.logger.Info("settings adopted", slog.String("from", from), slog.String("to", to))
	return nil
}

// Flush writes every pending autosave now.
func (s *SettingsService) Flush() {
	s.autosave.Flush()
}

// Close flushes pending autosaves and stops accepting new ones.
func (s *SettingsService) Close() {
	s.autosave.Flush()
	s.autosave.Stop()
}

func (s *SettingsService) validate(settings *model.Settings) error {
	if !s.languages.Supports(settings.Language) {
		return apperror.ValidationFailed("language",
			fmt.Sprintf("unsupported language %q", settings.Language))
	}
	if !themes[settings.Theme] {
		return apperror.ValidationFailed("theme",
			fmt.Sprintf("unknown theme %q", settings.Theme))
	}
	if len(settings.Code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}

// writeCode is the debounced autosave. It runs on a timer goroutine.
func (s *SettingsService) writeCode(ownerID, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := s.repo.UpdateCode(ctx, ownerID, code)
	if errors.Is(err, apperror.ErrNotFound) {
		settings := Defaults(ownerID)
		settings.Code = code
		err = s.repo.UpsertSettings(ctx, settings)
	}
	if err != nil {
		s.logger.Error("autosave failed",
			slog.String("owner", ownerID),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.observer != nil {
		s.observer.IncAutosave()
	}
	s.logger.Debug("code autosaved", slog.String("owner", ownerID), slog.Int("bytes", len(code)))
}

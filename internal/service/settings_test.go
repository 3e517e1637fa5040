package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
)

// fakeSettingsRepo is an in-memory repository.SettingsRepository. It is
// locked because autosave writes arrive on timer goroutines.
type fakeSettingsRepo struct {
	mu        sync.Mutex
	bags      map[string]model.Settings
	codeSaves int
	upsertErr error
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{bags: make(map[string]model.Settings)}
}

func (f *fakeSettingsRepo) GetSettings(_ context.Context, ownerID string) (*model.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bags[ownerID]
	if !ok {
		return nil, apperror.NotFound("settings", ownerID)
	}
	return &s, nil
}

func (f *fakeSettingsRepo) UpsertSettings(_ context.Context, s *model.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	s.UpdatedAt = time.Now()
	f.bags[s.OwnerID] = *s
	return nil
}

func (f *fakeSettingsRepo) UpdateCode(_ context.Context, ownerID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bags[ownerID]
	if !ok {
		return apperror.NotFound("settings", ownerID)
	}
	s.Code = code
	f.bags[ownerID] = s
	f.codeSaves++
	return nil
}

func (f *fakeSettingsRepo) DeleteSettings(_ context.Context, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bags[ownerID]; !ok {
		return apperror.NotFound("settings", ownerID)
	}
	delete(f.bags, ownerID)
	return nil
}

func (f *fakeSettingsRepo) code(ownerID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bags[ownerID]
	return s.Code, ok
}

type fakeLanguages []string

func (l fakeLanguages) Supports(language string) bool {
	for _, x := range l {
		if x == language {
			return true
		}
	}
	return false
}

type countingObserver struct{ n atomic.Int32 }

func (c *countingObserver) IncAutosave() { c.n.Add(1) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSettingsService(delay time.Duration) (*SettingsService, *fakeSettingsRepo, *countingObserver) {
	repo := newFakeSettingsRepo()
	obs := &countingObserver{}
	svc := NewSettingsService(repo, fakeLanguages{"javascript", "typescript"}, delay, obs, testLogger())
	return svc, repo, obs
}

func ptr[T any](v T) *T { return &v }

func TestInitialCode(t *testing.T) {
	assert.Contains(t, InitialCode("javascript"), "greeting('World')")
	assert.Equal(t, InitialCode("javascript"), InitialCode("node"))
	assert.Contains(t, InitialCode("typescript"), "(name: string) => void")
	assert.Empty(t, InitialCode("cobol"))
}

func TestGet_DefaultsForNewOwner(t *testing.T) {
	svc, _, _ := newTestSettingsService(time.Hour)

	s, err := svc.Get(context.Background(), "anon-1")
	require.NoError(t, err)

	assert.Equal(t, "anon-1", s.OwnerID)
	assert.Equal(t, "javascript", s.Language)
	assert.Equal(t, model.ThemeDark, s.Theme)
	assert.True(t, s.AutoSave)
	assert.False(t, s.AutoRun)
	assert.Equal(t, InitialCode("javascript"), s.Code)
}

func TestGet_EmptyOwner(t *testing.T) {
	svc, _, _ := newTestSettingsService(time.Hour)

	_, err := svc.Get(context.Background(), "")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestUpdate(t *testing.T) {
	svc, repo, _ := newTestSettingsService(time.Hour)
	ctx := context.Background()

	s, err := svc.Update(ctx, "anon-1", model.SettingsPatch{
		Theme:   ptr(model.ThemeLight),
		AutoRun: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ThemeLight, s.Theme)
	assert.True(t, s.AutoRun)
	assert.True(t, s.AutoSave, "untouched fields keep their value")

	stored, err := repo.GetSettings(ctx, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, model.ThemeLight, stored.Theme)
}

func TestUpdate_LanguageSwapsStarterCode(t *testing.T) {
	svc, _, _ := newTestSettingsService(time.Hour)
	ctx := context.Background()

	s, err := svc.Update(ctx, "anon-1", model.SettingsPatch{Language: ptr("typescript")})
	require.NoError(t, err)
	assert.Equal(t, InitialCode("typescript"), s.Code)

	_, err = svc.Update(ctx, "anon-1", model.SettingsPatch{Code: ptr("let mine = 1")})
	require.NoError(t, err)

	s, err = svc.Update(ctx, "anon-1", model.SettingsPatch{Language: ptr("javascript")})
	require.NoError(t, err)
	assert.Equal(t, "let mine = 1", s.Code, "edited code is never replaced")
}

func TestUpdate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		patch model.SettingsPatch
		field string
	}{
		{"unknown language", model.SettingsPatch{Language: ptr("cobol")}, "language"},
		{"language is case-sensitive", model.SettingsPatch{Language: ptr("JavaScript")}, "language"},
		{"unknown theme", model.SettingsPatch{Theme: ptr("solarized")}, "theme"},
		{"code too long", model.SettingsPatch{Code: ptr(strings.Repeat("x", MaxCodeLength+1))}, "code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestSettingsService(time.Hour)

			_, err := svc.Update(context.Background(), "anon-1", tt.patch)

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)

			_, ok := repo.code("anon-1")
			assert.False(t, ok, "nothing persisted")
		})
	}
}

func TestUpdate_RepositoryError(t *testing.T) {
	svc, repo, _ := newTestSettingsService(time.Hour)
	repo.upsertErr = errors.New("disk full")

	_, err := svc.Update(context.Background(), "anon-1", model.SettingsPatch{AutoRun: ptr(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSaveCode_DebouncesToLastValue(t *testing.T) {
	svc, repo, obs := newTestSettingsService(20 * time.Millisecond)
	ctx := context.Background()

	for _, code := range []string{"a", "ab", "abc"} {
		scheduled, err := svc.SaveCode(ctx, "anon-1", code)
		require.NoError(t, err)
		assert.True(t, scheduled)
	}

	assert.Eventually(t, func() bool {
		code, ok := repo.code("anon-1")
		return ok && code == "abc"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), obs.n.Load())
}

func TestSaveCode_UpdatesExistingBag(t *testing.T) {
	svc, repo, _ := newTestSettingsService(time.Hour)
	ctx := context.Background()

	_, err := svc.Update(ctx, "anon-1", model.SettingsPatch{Theme: ptr(model.ThemeHighContrast)})
	require.NoError(t, err)

	_, err = svc.SaveCode(ctx, "anon-1", "x = 1")
	require.NoError(t, err)
	svc.Flush()

	stored, err := repo.GetSettings(ctx, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, "x = 1", stored.Code)
	assert.Equal(t, model.ThemeHighContrast, stored.Theme)
	assert.Equal(t, 1, repo.codeSaves)
}

func TestSaveCode_AutoSaveOff(t *testing.T) {
	svc, repo, obs := newTestSettingsService(time.Hour)
	ctx := context.Background()

	_, err := svc.Update(ctx, "anon-1", model.SettingsPatch{AutoSave: ptr(false), Code: ptr("kept")})
	require.NoError(t, err)

	scheduled, err := svc.SaveCode(ctx, "anon-1", "dropped")
	require.NoError(t, err)
	assert.False(t, scheduled)

	svc.Flush()
	code, _ := repo.code("anon-1")
	assert.Equal(t, "kept", code)
	assert.Zero(t, obs.n.Load())
}

func TestSaveCode_TooLong(t *testing.T) {
	svc, _, _ := newTestSettingsService(time.Hour)

	_, err := svc.SaveCode(context.Background(), "anon-1", strings.Repeat("x", MaxCodeLength+1))
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestUpdate_CancelsPendingAutosave(t *testing.T) {
	svc, repo, _ := newTestSettingsService(time.Hour)
	ctx := context.Background()

	_, err := svc.SaveCode(ctx, "anon-1", "stale")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "anon-1", model.SettingsPatch{Code: ptr("fresh")})
	require.NoError(t, err)

	svc.Flush()
	code, _ := repo.code("anon-1")
	assert.Equal(t, "fresh", code)
}

func TestClose_FlushesPendingWrites(t *testing.T) {
	svc, repo, _ := newTestSettingsService(time.Hour)

	_, err := svc.SaveCode(context.Background(), "anon-1", "before shutdown")
	require.NoError(t, err)

	svc.Close()

	code, ok := repo.code("anon-1")
	require.True(t, ok)
	assert.Equal(t, "before shutdown", code)

	scheduled, err := svc.SaveCode(context.Background(), "anon-1", "after")
	require.NoError(t, err)
	assert.True(t, scheduled)
	svc.Flush()
	code, _ = repo.code("anon-1")
	assert.Equal(t, "before shutdown", code, "writes after Close are ignored")
}

func TestReset(t *testing.T) {
	svc, repo, _ := newTestSettingsService(time.Hour)
	ctx := context.Background()

	_, err := svc.Update(ctx, "anon-1", model.SettingsPatch{Theme: ptr(model.ThemeLight)})
	require.NoError(t, err)

	s, err := svc.Reset(ctx, "anon-1")
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, s.Theme)

	_, ok := repo.code("anon-1")
	assert.False(t, ok)

	// Resetting twice is fine.
	_, err = svc.Reset(ctx, "anon-1")
	assert.NoError(t, err)
}

func TestAdopt(t *testing.T) {
	ctx := context.Background()

	t.Run("copies to a user without settings", func(t *testing.T) {
		svc, repo, _ := newTestSettingsService(time.Hour)
		_, err := svc.Update(ctx, "anon-1", model.SettingsPatch{Theme: ptr(model.ThemeLight)})
		require.NoError(t, err)
		_, err = svc.SaveCode(ctx, "anon-1", "pending edit")
		require.NoError(t, err)

		require.NoError(t, svc.Adopt(ctx, "anon-1", "user-1"))

		got, err := repo.GetSettings(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, model.ThemeLight, got.Theme)
		assert.Equal(t, "pending edit", got.Code)
		assert.Equal(t, "user-1", got.OwnerID)
	})

	t.Run("keeps the user's own settings", func(t *testing.T) {
		svc, repo, _ := newTestSettingsService(time.Hour)
		_, err := svc.Update(ctx, "anon-1", model.SettingsPatch{Theme: ptr(model.ThemeLight)})
		require.NoError(t, err)
		_, err = svc.Update(ctx, "user-1", model.SettingsPatch{Theme: ptr(model.ThemeHighContrast)})
		require.NoError(t, err)

		require.NoError(t, svc.Adopt(ctx, "anon-1", "user-1"))

		got, err := repo.GetSettings(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, model.ThemeHighContrast, got.Theme)
	})

	t.Run("nothing to copy", func(t *testing.T) {
		svc, repo, _ := newTestSettingsService(time.Hour)

		require.NoError(t, svc.Adopt(ctx, "anon-1", "user-1"))
		require.NoError(t, svc.Adopt(ctx, "", "user-1"))

		_, ok := repo.code("user-1")
		assert.False(t, ok)
	})
}

package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/model"
)

// PlaygroundHandler renders the single-page editor.
type PlaygroundHandler struct {
	templates    *template.Template
	exec         executor.Executor
	settings     SettingsStore
	loginEnabled bool
	logger       *slog.Logger
}

// NewPlaygroundHandler parses base.html and playground.html from
// templateDir once, at startup.
func NewPlaygroundHandler(templateDir string, exec executor.Executor, settings SettingsStore, loginEnabled bool, logger *slog.Logger) (*PlaygroundHandler, error) {
	tmpl, err := template.ParseFiles(
		filepath.Join(templateDir, "base.html"),
		filepath.Join(templateDir, "playground.html"),
	)
	if err != nil {
		return nil, err
	}

	return &PlaygroundHandler{
		templates:    tmpl,
		exec:         exec,
		settings:     settings,
		loginEnabled: loginEnabled,
		logger:       logger,
	}, nil
}

type playgroundPage struct {
	Title        string
	Languages    []string
	Settings     *model.Settings
	LoginEnabled bool
}

func (h *PlaygroundHandler) HandlePlayground(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.Get(r.Context(), id.Subject)
	if err != nil {
		h.logger.Error("failed to load settings for page", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page := playgroundPage{
		Title:        "JS Playground",
		Languages:    h.exec.Languages(),
		Settings:     settings,
		LoginEnabled: h.loginEnabled,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", page); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

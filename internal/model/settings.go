// Package model defines the data structures used throughout the application.
package model

import "time"

// Editor themes the page knows how to render.
const (
	ThemeLight        = "vs"
	ThemeDark         = "vs-dark"
	ThemeHighContrast = "hc-black"
)

// Settings is the per-owner preference bag of the playground page.
//
// OwnerID is whoever the session cookie names: an anonymous visitor id, or
// a User.ID after GitHub login. Code is the editor buffer that autosave
// keeps up to date.
type Settings struct {
	OwnerID   string    `json:"-"`
	Language  string    `json:"language"`
	Theme     string    `json:"theme"`
	AutoSave  bool      `json:"autoSave"`
	AutoRun   bool      `json:"autoRun"`
	Code      string    `json:"code"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	Language *string `json:"language,omitempty"`
	Theme    *string `json:"theme,omitempty"`
	AutoSave *bool   `json:"autoSave,omitempty"`
	AutoRun  *bool   `json:"autoRun,omitempty"`
	Code     *string `json:"code,omitempty"`
}

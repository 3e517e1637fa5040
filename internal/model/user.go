package model

import "time"

// User represents a registered user account.
//
// GitHub OAuth is the only identity provider. We still generate our own
// internal string ID (xid) so settings rows are keyed the same way for
// anonymous and signed-in owners.
type User struct {
	ID        string    `json:"id"        db:"id"`
	GitHubID  int64     `json:"githubId"  db:"github_id"` // GitHub's numeric user ID
	Login     string    `json:"login"     db:"login"`     // GitHub username
	Email     string    `json:"email"     db:"email"`     // Primary public email (may be empty)
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

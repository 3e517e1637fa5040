package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/xid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the subset of GitHub's /user response we keep.
type GitHubUser struct {
	ID        int64  `json:"id"` // stable numeric id
	Login     string `json:"login"`
	Email     string `json:"email"` // empty if hidden in GitHub settings
	AvatarURL string `json:"avatar_url"`
}

// GitHubProvider runs the OAuth2 authorization-code flow against GitHub.
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewGitHubProvider configures the flow with GitHub's public endpoints.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		userURL: "https://api.github.com/user",
	}
}

// NewState returns an unguessable value for the OAuth state parameter.
func NewState() string {
	return xid.New().String() + xid.New().String()
}

// AuthURL is where the login handler redirects the browser.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for a token and fetches the profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("session: exchanging OAuth code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("session: building GitHub /user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.config.Client(ctx, oauthToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("session: decoding GitHub /user response: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("session: GitHub returned an invalid user (ID = 0)")
	}

	return &ghUser, nil
}

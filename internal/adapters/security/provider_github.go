package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/viralforge/identity-core/internal/ports"
	"golang.org/x/oauth2/github"
)

type githubProvider struct {
	*oauthClient
	profileURL string
	emailsURL  string
}

func newGitHubProvider(cfg ProviderConfig, client *http.Client) *githubProvider {
	c := newOAuthClient("github", cfg, github.Endpoint, []string{"read:user", "user:email"}, false, client)
	return &githubProvider{
		oauthClient: c,
		profileURL:  orDefault(cfg.ProfileURL, "https://api.github.com/user"),
		emailsURL:   orDefault(cfg.EmailsURL, "https://api.github.com/user/emails"),
	}
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchIdentity reads the profile and then the email list, since the profile
// email is empty for users with a private address.
func (p *githubProvider) FetchIdentity(ctx context.Context, token ports.ProviderToken, _ ports.ProviderCallback) (ports.ExternalIdentity, error) {
	var profile struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.getJSON(ctx, p.profileURL, token.AccessToken, &profile); err != nil {
		return ports.ExternalIdentity{}, err
	}

	var emails []githubEmail
	if err := p.getJSON(ctx, p.emailsURL, token.AccessToken, &emails); err != nil {
		return ports.ExternalIdentity{}, err
	}

	subject := ""
	if profile.ID != 0 {
		subject = strconv.FormatInt(profile.ID, 10)
	}
	return normalizedIdentity(p.name, subject, pickGitHubEmail(emails), firstNonEmpty(profile.Name, profile.Login), profile.AvatarURL), nil
}

// pickGitHubEmail returns the primary-flagged address, else the first one.
func pickGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && strings.TrimSpace(e.Email) != "" {
			return e.Email
		}
	}
	for _, e := range emails {
		if strings.TrimSpace(e.Email) != "" {
			return e.Email
		}
	}
	return ""
}

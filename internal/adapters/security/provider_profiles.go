package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/viralforge/identity-core/internal/ports"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/gitlab"
	"golang.org/x/oauth2/microsoft"
)

// Providers in this file expose identity through a bearer-authenticated
// profile endpoint.

type googleProvider struct {
	*oauthClient
	profileURL string
}

func newGoogleProvider(cfg ProviderConfig, client *http.Client) *googleProvider {
	endpoint := oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	c := newOAuthClient("google", cfg, endpoint, []string{"openid", "email", "profile"}, true, client)
	c.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "select_account")}
	return &googleProvider{
		oauthClient: c,
		profileURL:  orDefault(cfg.ProfileURL, "https://openidconnect.googleapis.com/v1/userinfo"),
	}
}

func (p *googleProvider) FetchIdentity(ctx context.Context, token ports.ProviderToken, _ ports.ProviderCallback) (ports.ExternalIdentity, error) {
	var payload struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := p.getJSON(ctx, p.profileURL, token.AccessToken, &payload); err != nil {
		return ports.ExternalIdentity{}, err
	}
	return normalizedIdentity(p.name, payload.Sub, payload.Email, payload.Name, payload.Picture), nil
}

type microsoftProvider struct {
	*oauthClient
	profileURL string
}

func newMicrosoftProvider(cfg ProviderConfig, client *http.Client) *microsoftProvider {
	c := newOAuthClient("microsoft", cfg, microsoft.AzureADEndpoint("common"), []string{"openid", "email", "profile", "User.Read"}, true, client)
	return &microsoftProvider{
		oauthClient: c,
		profileURL:  orDefault(cfg.ProfileURL, "https://graph.microsoft.com/v1.0/me"),
	}
}

func (p *microsoftProvider) FetchIdentity(ctx context.Context, token ports.ProviderToken, _ ports.ProviderCallback) (ports.ExternalIdentity, error) {
	var payload struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := p.getJSON(ctx, p.profileURL, token.AccessToken, &payload); err != nil {
		return ports.ExternalIdentity{}, err
	}
	return normalizedIdentity(p.name, payload.ID, firstNonEmpty(payload.Mail, payload.UserPrincipalName), payload.DisplayName, ""), nil
}

type discordProvider struct {
	*oauthClient
	profileURL string
}

func newDiscordProvider(cfg ProviderConfig, client *http.Client) *discordProvider {
	endpoint := oauth2.Endpoint{
		AuthURL:   "https://discord.com/oauth2/authorize",
		TokenURL:  "https://discord.com/api/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	c := newOAuthClient("discord", cfg, endpoint, []string{"identify", "email"}, false, client)
	return &discordProvider{
		oauthClient: c,
		profileURL:  orDefault(cfg.ProfileURL, "https://discord.com/api/users/@me"),
	}
}

func (p *discordProvider) FetchIdentity(ctx context.Context, token ports.ProviderToken, _ ports.ProviderCallback) (ports.ExternalIdentity, error) {
	var payload struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Avatar     string `json:"avatar"`
	}
	if err := p.getJSON(ctx, p.profileURL, token.AccessToken, &payload); err != nil {
		return ports.ExternalIdentity{}, err
	}
	avatar := ""
	if payload.Avatar != "" && payload.ID != "" {
		avatar = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", payload.ID, payload.Avatar)
	}
	return normalizedIdentity(p.name, payload.ID, payload.Email, firstNonEmpty(payload.GlobalName, payload.Username), avatar), nil
}

type gitlabProvider struct {
	*oauthClient
	profileURL string
}

func newGitLabProvider(cfg ProviderConfig, client *http.Client) *gitlabProvider {
	c := newOAuthClient("gitlab", cfg, gitlab.Endpoint, []string{"read_user"}, true, client)
	return &gitlabProvider{
		oauthClient: c,
		profileURL:  orDefault(cfg.ProfileURL, "https://gitlab.com/api/v4/user"),
	}
}

func (p *gitlabProvider) FetchIdentity(ctx context.Context, token ports.ProviderToken, _ ports.ProviderCallback) (ports.ExternalIdentity, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.getJSON(ctx, p.profileURL, token.AccessToken, &payload); err != nil {
		return ports.ExternalIdentity{}, err
	}
	subject := ""
	if payload.ID != 0 {
		subject = strconv.FormatInt(payload.ID, 10)
	}
	return normalizedIdentity(p.name, subject, payload.Email, firstNonEmpty(payload.Name, payload.Username), payload.AvatarURL), nil
}

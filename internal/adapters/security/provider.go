package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
	"golang.org/x/oauth2"
)

const maxProfileBody = 1 << 20

// ProviderConfig is the per-provider client registration. Endpoint fields are
// optional overrides of the provider's public endpoints.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	EmailsURL    string

	// Apple only.
	TeamID        string
	KeyID         string
	PrivateKeyPEM string
	JWKSURL       string
	Issuer        string
}

func (c ProviderConfig) configured() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// ProvidersConfig holds every provider this service can federate with.
type ProvidersConfig struct {
	HTTPClient *http.Client
	Google     ProviderConfig
	GitHub     ProviderConfig
	Microsoft  ProviderConfig
	Discord    ProviderConfig
	GitLab     ProviderConfig
	Apple      ProviderConfig
}

// ProviderRegistry selects a configured provider by name.
type ProviderRegistry struct {
	providers map[string]ports.IdentityProvider
}

// NewProviderRegistry registers every provider that has a client id.
// Unconfigured providers are absent, which callers report as not configured.
func NewProviderRegistry(cfg ProvidersConfig) (*ProviderRegistry, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	reg := &ProviderRegistry{providers: map[string]ports.IdentityProvider{}}

	if cfg.Google.configured() {
		reg.add(newGoogleProvider(cfg.Google, client))
	}
	if cfg.GitHub.configured() {
		reg.add(newGitHubProvider(cfg.GitHub, client))
	}
	if cfg.Microsoft.configured() {
		reg.add(newMicrosoftProvider(cfg.Microsoft, client))
	}
	if cfg.Discord.configured() {
		reg.add(newDiscordProvider(cfg.Discord, client))
	}
	if cfg.GitLab.configured() {
		reg.add(newGitLabProvider(cfg.GitLab, client))
	}
	if cfg.Apple.configured() {
		apple, err := newAppleProvider(cfg.Apple, client)
		if err != nil {
			return nil, fmt.Errorf("apple provider: %w", err)
		}
		reg.add(apple)
	}
	return reg, nil
}

func (r *ProviderRegistry) add(p ports.IdentityProvider) {
	r.providers[p.Name()] = p
}

func (r *ProviderRegistry) Provider(name string) (ports.IdentityProvider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (r *ProviderRegistry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// oauthClient carries what every authorization-code provider shares.
type oauthClient struct {
	name       string
	config     *oauth2.Config
	pkce       bool
	authParams []oauth2.AuthCodeOption
	httpClient *http.Client
}

func (c *oauthClient) Name() string   { return c.name }
func (c *oauthClient) UsesPKCE() bool { return c.pkce }

func (c *oauthClient) AuthorizeURL(state, codeVerifier string) string {
	opts := append([]oauth2.AuthCodeOption{}, c.authParams...)
	if c.pkce && codeVerifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(codeVerifier))
	}
	return c.config.AuthCodeURL(state, opts...)
}

func (c *oauthClient) ExchangeToken(ctx context.Context, callback ports.ProviderCallback, codeVerifier string) (ports.ProviderToken, error) {
	return c.exchangeWith(ctx, c.config, callback, codeVerifier)
}

func (c *oauthClient) exchangeWith(ctx context.Context, cfg *oauth2.Config, callback ports.ProviderCallback, codeVerifier string) (ports.ProviderToken, error) {
	code := strings.TrimSpace(callback.Code)
	if code == "" {
		return ports.ProviderToken{}, fmt.Errorf("%w: %s callback missing code", domain.ErrUpstream, c.name)
	}
	var opts []oauth2.AuthCodeOption
	if c.pkce && codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	tok, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), code, opts...)
	if err != nil {
		return ports.ProviderToken{}, describeExchangeError(c.name, err)
	}
	out := ports.ProviderToken{AccessToken: tok.AccessToken}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out, nil
}

// describeExchangeError keeps the provider's response body out of the error.
func describeExchangeError(provider string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return fmt.Errorf("%w: %s token exchange rejected: status=%d code=%s", domain.ErrUpstream, provider, status, retrieveErr.ErrorCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s token exchange timed out", domain.ErrUpstream, provider)
	}
	return fmt.Errorf("%w: %s token exchange failed", domain.ErrUpstream, provider)
}

// getJSON performs an authenticated GET against a provider API.
func (c *oauthClient) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s profile request failed", domain.ErrUpstream, c.name)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s profile request status=%d", domain.ErrUpstream, c.name, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s profile decode failed", domain.ErrUpstream, c.name)
	}
	return nil
}

func newOAuthClient(name string, cfg ProviderConfig, endpoint oauth2.Endpoint, defaultScopes []string, pkce bool, client *http.Client) *oauthClient {
	if strings.TrimSpace(cfg.AuthURL) != "" {
		endpoint.AuthURL = strings.TrimSpace(cfg.AuthURL)
	}
	if strings.TrimSpace(cfg.TokenURL) != "" {
		endpoint.TokenURL = strings.TrimSpace(cfg.TokenURL)
	}
	return &oauthClient{
		name: name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopesOrDefault(cfg.Scopes, defaultScopes),
			Endpoint:     endpoint,
		},
		pkce:       pkce,
		httpClient: client,
	}
}

func normalizedIdentity(provider, subject, email, displayName, avatarURL string) ports.ExternalIdentity {
	return ports.ExternalIdentity{
		Provider:    provider,
		Subject:     strings.TrimSpace(subject),
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
		AvatarURL:   strings.TrimSpace(avatarURL),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func scopesOrDefault(scopes, defaults []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return append([]string{}, defaults...)
	}
	return out
}

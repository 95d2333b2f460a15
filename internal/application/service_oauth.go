package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
	"golang.org/x/oauth2"
)

const defaultOAuthLanding = "/auth/callback"

// OAuth failure codes shown to the browser. Provider detail never reaches them.
const (
	OAuthErrNotConfigured  = "oauth_not_configured"
	OAuthErrDenied         = "oauth_denied"
	OAuthErrStateInvalid   = "oauth_state_invalid"
	OAuthErrExchangeFailed = "oauth_exchange_failed"
	OAuthErrEmailRequired  = "oauth_email_required"
	OAuthErrFailed         = "oauth_failed"
)

// OAuthFailureCode classifies a federated sign-in error for the login redirect.
func OAuthFailureCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return OAuthErrNotConfigured
	case errors.Is(err, domain.ErrAccessDenied):
		return OAuthErrDenied
	case errors.Is(err, domain.ErrStateInvalid):
		return OAuthErrStateInvalid
	case errors.Is(err, domain.ErrUpstream):
		return OAuthErrExchangeFailed
	case errors.Is(err, domain.ErrEmailRequired):
		return OAuthErrEmailRequired
	default:
		return OAuthErrFailed
	}
}

// ProviderNames lists the configured providers.
func (s *Service) ProviderNames() []string {
	if s.providers == nil {
		return nil
	}
	return s.providers.Names()
}

func (s *Service) provider(name string) (ports.IdentityProvider, error) {
	if s.providers == nil {
		return nil, fmt.Errorf("%w: oauth provider %q", domain.ErrNotConfigured, name)
	}
	p, ok := s.providers.Provider(name)
	if !ok {
		return nil, fmt.Errorf("%w: oauth provider %q", domain.ErrNotConfigured, name)
	}
	return p, nil
}

// OAuthAuthorize stores fresh state for the provider and returns the URL to
// send the browser to. redirectTo is an optional path inside the frontend.
// The caller binds the returned state to the browser.
func (s *Service) OAuthAuthorize(ctx context.Context, providerName, redirectTo string) (OAuthStart, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return OAuthStart{}, err
	}
	state, err := randomHex(32)
	if err != nil {
		return OAuthStart{}, err
	}
	verifier := ""
	if p.UsesPKCE() {
		verifier = oauth2.GenerateVerifier()
	}
	if err := s.oauthState.Put(ctx, state, ports.OAuthState{
		Provider:     p.Name(),
		RedirectTo:   safeLandingPath(redirectTo),
		CodeVerifier: verifier,
		CreatedAt:    s.nowFn(),
	}, s.cfg.OAuthStateTTL); err != nil {
		return OAuthStart{}, fmt.Errorf("store oauth state: %w", err)
	}
	return OAuthStart{URL: p.AuthorizeURL(state, verifier), State: state}, nil
}

// OAuthCallback runs the callback half of a federated sign-in: state check,
// code exchange, identity normalization, account resolution and token issue.
func (s *Service) OAuthCallback(ctx context.Context, providerName string, callback ports.ProviderCallback, client ClientInfo) (result OAuthResult, err error) {
	label := strings.ToLower(strings.TrimSpace(providerName))
	defer func() {
		if err != nil {
			code := OAuthFailureCode(err)
			s.metrics.OAuthCallback(label, code)
			s.logEvent(ctx, slog.LevelWarn, "oauth callback failed", "oauth_callback", "failure",
				"provider", label,
				"error_code", code,
				"error", err,
			)
		}
	}()

	p, err := s.provider(providerName)
	if err != nil {
		return OAuthResult{}, err
	}
	label = p.Name()

	stateKey := strings.TrimSpace(callback.State)
	if stateKey == "" {
		if strings.TrimSpace(callback.Error) != "" {
			return OAuthResult{}, fmt.Errorf("%w: %s", domain.ErrAccessDenied, coarseProviderError(callback.Error))
		}
		return OAuthResult{}, fmt.Errorf("%w: missing state", domain.ErrStateInvalid)
	}
	// The state must come back in the same browser that started the flow.
	bound := strings.TrimSpace(callback.BrowserState)
	if bound == "" || subtle.ConstantTimeCompare([]byte(bound), []byte(stateKey)) != 1 {
		return OAuthResult{}, fmt.Errorf("%w: state not bound to this browser", domain.ErrStateInvalid)
	}
	state, err := s.oauthState.Take(ctx, stateKey)
	if err != nil {
		return OAuthResult{}, fmt.Errorf("load oauth state: %w", err)
	}
	if state == nil {
		return OAuthResult{}, fmt.Errorf("%w: unknown or reused state", domain.ErrStateInvalid)
	}
	if state.Provider != p.Name() {
		return OAuthResult{}, fmt.Errorf("%w: state issued for another provider", domain.ErrStateInvalid)
	}
	if strings.TrimSpace(callback.Error) != "" {
		return OAuthResult{}, fmt.Errorf("%w: %s", domain.ErrAccessDenied, coarseProviderError(callback.Error))
	}

	token, err := p.ExchangeToken(ctx, callback, state.CodeVerifier)
	if err != nil {
		return OAuthResult{}, err
	}
	identity, err := p.FetchIdentity(ctx, token, callback)
	if err != nil {
		return OAuthResult{}, err
	}
	if identity.Subject == "" {
		return OAuthResult{}, fmt.Errorf("%w: %s returned no subject", domain.ErrUpstream, p.Name())
	}
	if identity.Email == "" {
		return OAuthResult{}, domain.ErrEmailRequired
	}
	email, err := domain.NormalizeEmail(identity.Email)
	if err != nil {
		return OAuthResult{}, fmt.Errorf("%w: provider email unusable", domain.ErrEmailRequired)
	}
	identity.Email = email

	user, err := s.resolveFederatedUser(ctx, identity)
	if err != nil {
		return OAuthResult{}, err
	}
	auth, err := s.issueSession(ctx, user, client, "oauth")
	if err != nil {
		return OAuthResult{}, err
	}

	s.metrics.OAuthCallback(p.Name(), "success")
	s.metrics.Login("oauth", "success")
	s.logEvent(ctx, slog.LevelInfo, "oauth sign-in completed", "oauth_callback", "success",
		"provider", p.Name(),
		"user_id", user.UserID.String(),
	)

	landing := state.RedirectTo
	if landing == "" {
		landing = defaultOAuthLanding
	}
	return OAuthResult{
		Auth:        auth,
		RedirectURL: s.frontendLink(landing, nil) + "#token=" + url.QueryEscape(auth.Token),
	}, nil
}

// OAuthFailureRedirect is where the browser goes after a failed callback.
func (s *Service) OAuthFailureRedirect(err error) string {
	return s.frontendLink("/login", url.Values{"error": {OAuthFailureCode(err)}})
}

// resolveFederatedUser maps a provider identity onto the single account for
// its email, creating the account on first sight.
func (s *Service) resolveFederatedUser(ctx context.Context, identity ports.ExternalIdentity) (domain.User, error) {
	now := s.nowFn()
	user, err := s.users.GetByEmail(ctx, identity.Email)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		user, err = s.users.Create(ctx, ports.CreateUserParams{
			Email:         identity.Email,
			Name:          displayNameOrDefault(identity.DisplayName, identity.Email),
			Role:          domain.RoleUser,
			EmailVerified: true,
			AvatarURL:     identity.AvatarURL,
			OAuthProvider: identity.Provider,
			OAuthSubject:  identity.Subject,
			CreatedAt:     now,
		})
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent callback for the same email won the insert.
			user, err = s.users.GetByEmail(ctx, identity.Email)
		} else if err == nil {
			s.metrics.Registration("oauth")
		}
		if err != nil {
			return domain.User{}, err
		}
	default:
		return domain.User{}, err
	}

	if user.OAuthProvider == "" {
		if err := s.federation.LinkProvider(ctx, user.UserID, identity.Provider, identity.Subject, now); err != nil {
			return domain.User{}, err
		}
		user.OAuthProvider = identity.Provider
		user.OAuthSubject = identity.Subject
	}
	if (user.Name == "" && identity.DisplayName != "") || (user.AvatarURL == "" && identity.AvatarURL != "") {
		if err := s.federation.FillProfile(ctx, user.UserID, identity.DisplayName, identity.AvatarURL, now); err != nil {
			return domain.User{}, err
		}
		if user.Name == "" {
			user.Name = identity.DisplayName
		}
		if user.AvatarURL == "" {
			user.AvatarURL = identity.AvatarURL
		}
	}
	if err := s.federation.UpsertIdentity(ctx, domain.OAuthIdentity{
		UserID:      user.UserID,
		Provider:    identity.Provider,
		Subject:     identity.Subject,
		Email:       identity.Email,
		LinkedAt:    now,
		LastLoginAt: now,
	}); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// safeLandingPath keeps post-login redirects inside the frontend origin.
func safeLandingPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// coarseProviderError keeps only the short error code from a provider redirect.
func coarseProviderError(raw string) string {
	return clip(strings.ToValidUTF8(strings.TrimSpace(raw), ""), 64)
}

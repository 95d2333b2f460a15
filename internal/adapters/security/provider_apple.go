package security

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/identity-core/internal/domain"
	"github.com/viralforge/identity-core/internal/ports"
	"golang.org/x/oauth2"
)

const (
	appleIssuer          = "https://appleid.apple.com"
	appleClientSecretTTL = 5 * time.Minute
)

// AppleIdentityToken is the compact JWS Apple returns next to the access token.
// Its claims are only reachable through verify.
type AppleIdentityToken struct {
	raw string
}

type appleClaims struct {
	Subject string
	Email   string
}

func (t AppleIdentityToken) verify(ctx context.Context, v *jwksVerifier) (appleClaims, error) {
	if strings.TrimSpace(t.raw) == "" {
		return appleClaims{}, errors.New("apple id_token missing")
	}
	claims, err := v.verify(ctx, t.raw)
	if err != nil {
		return appleClaims{}, err
	}
	return appleClaims{
		Subject: stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
	}, nil
}

type appleProvider struct {
	*oauthClient
	teamID     string
	keyID      string
	signingKey *ecdsa.PrivateKey
	verifier   *jwksVerifier
	nowFn      func() time.Time
}

func newAppleProvider(cfg ProviderConfig, client *http.Client) (*appleProvider, error) {
	endpoint := oauth2.Endpoint{
		AuthURL:   "https://appleid.apple.com/auth/authorize",
		TokenURL:  "https://appleid.apple.com/auth/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	c := newOAuthClient("apple", cfg, endpoint, []string{"name", "email"}, false, client)
	c.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("response_mode", "form_post")}

	p := &appleProvider{
		oauthClient: c,
		teamID:      strings.TrimSpace(cfg.TeamID),
		keyID:       strings.TrimSpace(cfg.KeyID),
		verifier: newJWKSVerifier(
			orDefault(cfg.JWKSURL, "https://appleid.apple.com/auth/keys"),
			orDefault(cfg.Issuer, appleIssuer),
			cfg.ClientID,
		),
		nowFn: time.Now,
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		if strings.TrimSpace(cfg.PrivateKeyPEM) == "" || p.teamID == "" || p.keyID == "" {
			return nil, errors.New("client secret or team id, key id and private key are required")
		}
		key, err := parseECPrivate(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		p.signingKey = key
	}
	return p, nil
}

// ExchangeToken mints a short-lived client secret per exchange when the
// provider is configured with a signing key instead of a static secret.
func (p *appleProvider) ExchangeToken(ctx context.Context, callback ports.ProviderCallback, codeVerifier string) (ports.ProviderToken, error) {
	cfg := p.config
	if p.signingKey != nil {
		secret, err := p.clientSecret()
		if err != nil {
			return ports.ProviderToken{}, fmt.Errorf("%w: apple client secret: %v", domain.ErrUpstream, err)
		}
		copied := *p.config
		copied.ClientSecret = secret
		cfg = &copied
	}
	return p.exchangeWith(ctx, cfg, callback, codeVerifier)
}

func (p *appleProvider) clientSecret() (string, error) {
	now := p.nowFn().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    p.teamID,
		Subject:   p.config.ClientID,
		Audience:  jwt.ClaimStrings{appleIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appleClientSecretTTL)),
	})
	token.Header["kid"] = p.keyID
	return token.SignedString(p.signingKey)
}

// FetchIdentity reads identity from the verified id_token. Apple sends the
// user's name only on first authorization, as a JSON form field.
func (p *appleProvider) FetchIdentity(ctx context.Context, token ports.ProviderToken, callback ports.ProviderCallback) (ports.ExternalIdentity, error) {
	claims, err := AppleIdentityToken{raw: token.IDToken}.verify(ctx, p.verifier)
	if err != nil {
		return ports.ExternalIdentity{}, fmt.Errorf("%w: apple id_token rejected: %v", domain.ErrUpstream, err)
	}
	return normalizedIdentity(p.name, claims.Subject, claims.Email, appleDisplayName(callback.FormValues["user"]), ""), nil
}

func appleDisplayName(rawUser string) string {
	if strings.TrimSpace(rawUser) == "" {
		return ""
	}
	var user struct {
		Name struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"name"`
	}
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return ""
	}
	return strings.TrimSpace(user.Name.FirstName + " " + user.Name.LastName)
}

func parseECPrivate(raw string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := keyAny.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not ECDSA")
	}
	return key, nil
}

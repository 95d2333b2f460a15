package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PasswordHasher hashes new passwords and verifies stored ones in either
// supported encoding.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
	NeedsRehash(stored string) bool
}

// AuthClaims is the identity carried by a bearer token.
type AuthClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email, role string) (string, AuthClaims, error)
	Verify(token string) (AuthClaims, error)
}

// TOTP generates and checks time-based one-time codes.
type TOTP interface {
	GenerateSecret() (string, error)
	ProvisioningURI(secret, account string) string
	// Verify returns the time step the code belongs to.
	Verify(secret, code string, now time.Time) (int64, bool)
}

// ProviderCallback is what the provider sent back to the redirect URI.
// FormValues is the raw form for providers that post extra fields.
// BrowserState is the state the browser itself carried, from its cookie.
type ProviderCallback struct {
	Code         string
	State        string
	Error        string
	FormValues   map[string]string
	BrowserState string
}

// ProviderToken is the result of a code exchange.
type ProviderToken struct {
	AccessToken string
	// IDToken is the raw inline identity token, when the provider returns one.
	IDToken string
}

// ExternalIdentity is a provider profile normalized to one shape.
type ExternalIdentity struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// IdentityProvider is one federated sign-in provider.
type IdentityProvider interface {
	Name() string
	UsesPKCE() bool
	AuthorizeURL(state, codeVerifier string) string
	ExchangeToken(ctx context.Context, callback ProviderCallback, codeVerifier string) (ProviderToken, error)
	FetchIdentity(ctx context.Context, token ProviderToken, callback ProviderCallback) (ExternalIdentity, error)
}

// ProviderDirectory resolves providers by name.
type ProviderDirectory interface {
	Provider(name string) (IdentityProvider, bool)
	Names() []string
}

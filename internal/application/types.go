package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
)

type Config struct {
	// FrontendURL is the browser application that receives federated sign-in
	// results and the links in outbound mail.
	FrontendURL string

	FailedLoginThreshold int
	LockoutDuration      time.Duration
	LoginRateLimitPerIP  int
	LoginRateLimitWindow time.Duration

	RecoveryRateLimit       int
	RecoveryRateLimitWindow time.Duration
	PasswordResetTTL        time.Duration

	TwoFactorChallengeTTL time.Duration
	TwoFactorMaxAttempts  int
	RecoveryCodeCount     int

	OAuthStateTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailedLoginThreshold <= 0 {
		c.FailedLoginThreshold = 5
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.LoginRateLimitWindow <= 0 {
		c.LoginRateLimitWindow = time.Minute
	}
	if c.RecoveryRateLimit <= 0 {
		c.RecoveryRateLimit = 3
	}
	if c.RecoveryRateLimitWindow <= 0 {
		c.RecoveryRateLimitWindow = time.Hour
	}
	if c.PasswordResetTTL <= 0 {
		c.PasswordResetTTL = time.Hour
	}
	if c.TwoFactorChallengeTTL <= 0 {
		c.TwoFactorChallengeTTL = 5 * time.Minute
	}
	if c.TwoFactorMaxAttempts <= 0 {
		c.TwoFactorMaxAttempts = 5
	}
	if c.RecoveryCodeCount <= 0 {
		c.RecoveryCodeCount = 10
	}
	if c.OAuthStateTTL <= 0 {
		c.OAuthStateTTL = 10 * time.Minute
	}
	return c
}

// ClientInfo is the request metadata recorded on a device session.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TwoFactorLoginRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type TwoFactorDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// UserView is the public projection of an account. Credentials never leave
// the service through it.
type UserView struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	EmailVerified    bool      `json:"emailVerified"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	OAuthProvider    string    `json:"oauthProvider,omitempty"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	HasPassword      bool      `json:"hasPassword"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toUserView(u domain.User) UserView {
	return UserView{
		ID:               u.UserID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		EmailVerified:    u.EmailVerified,
		AvatarURL:        u.AvatarURL,
		OAuthProvider:    u.OAuthProvider,
		TwoFactorEnabled: u.TwoFactorOn,
		HasPassword:      u.HasPassword(),
		CreatedAt:        u.CreatedAt,
	}
}

// AuthResult is a completed sign-in.
type AuthResult struct {
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"-"`
}

// LoginResult is either a completed sign-in or a pending second factor.
type LoginResult struct {
	User              *UserView `json:"user,omitempty"`
	Token             string    `json:"token,omitempty"`
	RequiresTwoFactor bool      `json:"requiresTwoFactor,omitempty"`
	ChallengeToken    string    `json:"challengeToken,omitempty"`
	ExpiresAt         time.Time `json:"-"`
}

type TwoFactorSetupResult struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"otpauthUrl"`
}

type TwoFactorStatus struct {
	Enabled                bool `json:"enabled"`
	RecoveryCodesRemaining int  `json:"recoveryCodesRemaining"`
}

type TwoFactorConfirmResult struct {
	RecoveryCodes []string `json:"recoveryCodes"`
}

// OAuthStart is the provider URL plus the state the browser must present
// again on the callback.
type OAuthStart struct {
	URL   string
	State string
}

// OAuthResult carries the browser destination for a completed federated sign-in.
type OAuthResult struct {
	Auth        AuthResult
	RedirectURL string
}

type SessionView struct {
	ID           uuid.UUID `json:"id"`
	UserAgent    string    `json:"userAgent"`
	IPAddress    string    `json:"ipAddress"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Current      bool      `json:"current"`
}

func toSessionView(s domain.Session, currentFingerprint string) SessionView {
	return SessionView{
		ID:           s.SessionID,
		UserAgent:    s.UserAgent,
		IPAddress:    s.IPAddress,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		ExpiresAt:    s.ExpiresAt,
		Current:      currentFingerprint != "" && s.TokenFingerprint == currentFingerprint,
	}
}

// UserIdentity is the narrow read model served to administrators.
type UserIdentity struct {
	UserID           uuid.UUID `json:"userId"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	EmailVerified    bool      `json:"emailVerified"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	Providers        []string  `json:"providers"`
	CreatedAt        time.Time `json:"createdAt"`
}

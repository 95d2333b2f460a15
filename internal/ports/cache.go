package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LockoutState is the current failure envelope for a login key.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// LockoutStore tracks repeated login failures.
type LockoutStore interface {
	Get(ctx context.Context, key string) (LockoutState, error)
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (LockoutState, error)
	Clear(ctx context.Context, key string) error
}

// RateLimiter is a fixed-window request counter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TwoFactorChallenge binds a password-verified login to its pending second factor.
type TwoFactorChallenge struct {
	UserID    uuid.UUID `json:"user_id"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TwoFactorChallengeStore persists short-lived login challenges.
// Get returns (nil, nil) for unknown or expired tokens. Consume reports
// whether this caller was the one to remove the challenge.
type TwoFactorChallengeStore interface {
	Put(ctx context.Context, token string, challenge TwoFactorChallenge, ttl time.Duration) error
	Get(ctx context.Context, token string) (*TwoFactorChallenge, error)
	Consume(ctx context.Context, token string) (bool, error)
}

// OAuthState is what the authorize step leaves behind for the callback.
type OAuthState struct {
	Provider     string    `json:"provider"`
	RedirectTo   string    `json:"redirect_to,omitempty"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OAuthStateStore keeps authorization state between redirect and callback.
// Take is single-use: it returns (nil, nil) for unknown, expired or reused state.
type OAuthStateStore interface {
	Put(ctx context.Context, state string, value OAuthState, ttl time.Duration) error
	Take(ctx context.Context, state string) (*OAuthState, error)
}

package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/identity-core/internal/domain"
)

// CreateUserParams captures the inputs for a new account row.
// PasswordHash is empty for accounts created through a federated provider.
type CreateUserParams struct {
	Email                 string
	Name                  string
	PasswordHash          string
	Role                  string
	EmailVerified         bool
	AvatarURL             string
	OAuthProvider         string
	OAuthSubject          string
	VerificationTokenHash string
	CreatedAt             time.Time
}

// UserRepository defines persistence operations for accounts.
// Create returns domain.ErrConflict when the email is already taken.
type UserRepository interface {
	Create(ctx context.Context, params CreateUserParams) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
}

// CredentialRepository manages mutable password state.
type CredentialRepository interface {
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error
	// ReplacePasswordHash swaps the hash only if it still equals previousHash.
	ReplacePasswordHash(ctx context.Context, userID uuid.UUID, previousHash, nextHash string, updatedAt time.Time) error
}

// RecoveryRepository owns the single-use reset and verification tokens.
// Only fingerprints are passed in; consumption clears the token in the same
// statement that checks it.
type RecoveryRepository interface {
	SetPasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt, updatedAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error)
	SetEmailVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, updatedAt time.Time) error
	ConsumeEmailVerificationToken(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
}

// FederationRepository attaches provider identities to accounts.
type FederationRepository interface {
	// LinkProvider records provider+subject on the user row when none is recorded yet.
	LinkProvider(ctx context.Context, userID uuid.UUID, provider, subject string, updatedAt time.Time) error
	// FillProfile sets name and avatar only where the stored values are empty.
	FillProfile(ctx context.Context, userID uuid.UUID, name, avatarURL string, updatedAt time.Time) error
	UpsertIdentity(ctx context.Context, identity domain.OAuthIdentity) error
	ListIdentities(ctx context.Context, userID uuid.UUID) ([]domain.OAuthIdentity, error)
}

// MFARepository controls second-factor state. Enable and Disable are atomic.
type MFARepository interface {
	SetPendingSecret(ctx context.Context, userID uuid.UUID, secret string, updatedAt time.Time) error
	// Enable turns on the pending secret the caller verified. It fails with
	// ErrConflict if that secret is no longer the pending one.
	Enable(ctx context.Context, userID uuid.UUID, secret string, step int64, recoveryCodeHashes []string, updatedAt time.Time) error
	// ClaimTOTPStep records step as used. It reports false when the same or a
	// later step was already accepted.
	ClaimTOTPStep(ctx context.Context, userID uuid.UUID, step int64, updatedAt time.Time) (bool, error)
	Disable(ctx context.Context, userID uuid.UUID, updatedAt time.Time) error
	ConsumeRecoveryCode(ctx context.Context, userID uuid.UUID, codeHash string, usedAt time.Time) (bool, error)
	CountRecoveryCodes(ctx context.Context, userID uuid.UUID) (int, error)
}

// SessionCreateParams captures metadata required to record a device session.
type SessionCreateParams struct {
	UserID           uuid.UUID
	TokenFingerprint string
	UserAgent        string
	IPAddress        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// SessionRepository manages advisory device-session bookkeeping.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error)
	TouchByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string, touchedAt time.Time) error
	DeleteByID(ctx context.Context, userID, sessionID uuid.UUID) error
	DeleteByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) error
	DeleteOthers(ctx context.Context, userID uuid.UUID, keepFingerprint string) (int64, error)
	PurgeExpired(ctx context.Context, userID uuid.UUID, now time.Time) error
}
